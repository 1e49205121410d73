package quadrature

import (
	"fmt"
	"time"

	"github.com/sweeney/plunger-sensor/internal/gpio"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Kind distinguishes quadrature sensor technologies. They differ only in resolution.
type Kind int

const (
	Optical Kind = iota
	Magnetic
)

// Default native scales: counts over the full plunger travel.
const (
	DefaultOpticalScale  = 1200 // 75 lines per inch, 4 edges per line, 4 inches
	DefaultMagneticScale = 4000 // 40 counts per mm over 100 mm
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Magnetic {
		return "magnetic"
	}
	return "optical"
}

// Config configures a quadrature sensor.
type Config struct {
	Kind Kind
	// NativeScale overrides the kind's default when positive.
	NativeScale int
	// Park is the count stored by AutoZero: the rest position in counts.
	// Negative selects NativeScale/6, the default calibrated zero.
	Park int
}

// Scale returns the configured native scale, or the kind's default.
func (c Config) Scale() int {
	switch {
	case c.NativeScale > 0:
		return c.NativeScale
	case c.Kind == Magnetic:
		return DefaultMagneticScale
	}
	return DefaultOpticalScale
}

// Sensor is a quadrature plunger sensor. It is always ready.
type Sensor struct {
	counter *Counter
	watcher gpio.EdgeWatcher
	scale   int
	park    int
	timer   plunger.ScanTimer
	now     func() time.Time
}

// NewSensor creates a sensor counting edges from watcher.
func NewSensor(watcher gpio.EdgeWatcher, cfg Config) *Sensor {
	scale := cfg.Scale()
	park := cfg.Park
	if park < 0 {
		park = scale / 6
	}
	return &Sensor{
		counter: &Counter{},
		watcher: watcher,
		scale:   scale,
		park:    park,
		now:     time.Now,
	}
}

// Init starts edge delivery, syncs the phase to the line levels and parks the counter.
func (s *Sensor) Init() error {
	if err := s.watcher.Watch(s.counter.Edge); err != nil {
		return fmt.Errorf("watch quadrature lines: %w", err)
	}
	a, b, err := s.watcher.Levels()
	if err != nil {
		return fmt.Errorf("read quadrature lines: %w", err)
	}
	s.counter.SetPhase(a, b)
	s.counter.Set(s.park)
	return nil
}

// ReadRaw samples the counter. It never fails.
func (s *Sensor) ReadRaw() (plunger.RawReading, error) {
	t0 := s.now()
	r := plunger.RawReading{Pos: s.counter.Position(), Time: t0}
	s.timer.Add(s.now().Sub(t0))
	return r, nil
}

// AutoZero references the counter to the park position.
func (s *Sensor) AutoZero() {
	s.counter.Set(s.park)
}

// NativeScale returns the counts over the full travel.
func (s *Sensor) NativeScale() int {
	return s.scale
}

// AverageScanTime returns the mean read time.
func (s *Sensor) AverageScanTime() time.Duration {
	return s.timer.Average()
}

// InvalidTransitions returns the number of invalid phase transitions seen.
func (s *Sensor) InvalidTransitions() uint64 {
	return s.counter.Invalid()
}

// Close releases the lines.
func (s *Sensor) Close() error {
	return s.watcher.Close()
}
