package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/plunger-sensor/internal/gpio"
)

// ADC is a potentiometer wiper following the motion model. It implements analog.ADC.
type ADC struct {
	motion Motion
	bits   int
	noise  int
	now    func() time.Time
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewADC creates a simulated converter of the given resolution with peak
// uniform noise in counts.
func NewADC(m Motion, bits, noise int, seed int64) *ADC {
	return &ADC{motion: m, bits: bits, noise: noise, now: time.Now, rng: rand.New(rand.NewSource(seed))}
}

// Read returns the wiper position in counts.
func (a *ADC) Read() (int, error) {
	max := 1<<a.bits - 1
	v := int(a.motion.At(a.now())*float64(max) + 0.5)
	if a.noise > 0 {
		a.mu.Lock()
		v += a.rng.Intn(2*a.noise+1) - a.noise
		a.mu.Unlock()
	}
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	return v, nil
}

// Bits returns the resolution.
func (a *ADC) Bits() int {
	return a.bits
}

// Close is a no-op.
func (a *ADC) Close() error {
	return nil
}

// Edges drives a quadrature line pair from the motion model. It implements
// gpio.EdgeWatcher; edges are emitted from its own goroutine, as the GPIO
// event goroutine does on hardware.
type Edges struct {
	*gpio.FakeEdges
	motion Motion
	counts int
	tick   time.Duration
	now    func() time.Time

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewEdges creates simulated quadrature lines. counts is the number of
// quadrature steps over the full travel; tick is the update period.
func NewEdges(m Motion, counts int, tick time.Duration) *Edges {
	if tick <= 0 {
		tick = time.Millisecond
	}
	return &Edges{
		FakeEdges: gpio.NewFakeEdges(false, false),
		motion:    m,
		counts:    counts,
		tick:      tick,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Watch starts emitting edges toward the motion model's position. The
// count starts at the current position.
func (e *Edges) Watch(h gpio.EdgeHandler) error {
	if err := e.FakeEdges.Watch(h); err != nil {
		return err
	}
	e.wg.Add(1)
	go e.run()
	return nil
}

func (e *Edges) target() int {
	return int(e.motion.At(e.now())*float64(e.counts) + 0.5)
}

func (e *Edges) run() {
	defer e.wg.Done()
	t := time.NewTicker(e.tick)
	defer t.Stop()

	at := e.target()
	for {
		select {
		case <-e.done:
			return
		case <-t.C:
			next := e.target()
			e.Step(next - at)
			at = next
		}
	}
}

// Close stops the edge goroutine.
func (e *Edges) Close() error {
	e.once.Do(func() { close(e.done) })
	e.wg.Wait()
	return e.FakeEdges.Close()
}
