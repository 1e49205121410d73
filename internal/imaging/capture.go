// Package imaging provides frame acquisition for linear image sensors.
//
// A Capture hides the sensor's transfer hardware behind a ready/acquire/release
// contract. Frames are double-buffered: a transfer goroutine fills one buffer
// while the caller processes the other. Acquire is a bounded wait: it blocks for
// at most MaxTransfer and then reports ErrNotReady.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// ErrNotReady is returned by Acquire when no frame completed within MaxTransfer.
var ErrNotReady = fmt.Errorf("frame not ready: %w", plunger.ErrNoReading)

// ErrBorrowed is returned by Acquire when the previous frame has not been released.
var ErrBorrowed = errors.New("frame already borrowed")

// ErrNotBorrowed is returned by Release for a frame the caller does not hold.
var ErrNotBorrowed = errors.New("frame not borrowed")

// FrameSource is the sensor-specific transfer hardware.
type FrameSource interface {
	// Pixels is the number of pixels per frame.
	Pixels() int

	// Capture integrates light for the given time and transfers one frame into dst.
	// It blocks until the transfer completes.
	Capture(dst []byte, integration time.Duration) error

	// Close releases the hardware.
	Close() error
}

// Frame is a borrowed, read-only view of a completed buffer.
// It must be handed back with Release before the buffer can be refilled.
type Frame struct {
	Pix         []byte
	Time        time.Time // midpoint of the transfer
	Integration time.Duration
	index       int
}

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	// Integration is the base integration time applied to every frame.
	Integration time.Duration
	// MaxIntegration caps the extension set with SetMinIntegrationTime.
	MaxIntegration time.Duration
	// MaxTransfer bounds the wait in Acquire.
	MaxTransfer time.Duration
	// RetryDelay is the pause after a failed transfer.
	RetryDelay time.Duration
	// DropStale replaces a completed frame the caller has not acquired yet
	// with the next one, so Acquire always sees the newest frame. Without it
	// frames are delivered in capture order.
	DropStale bool
}

// DefaultCaptureConfig returns defaults suitable for a 1-2 kpixel sensor.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Integration:    0,
		MaxIntegration: 2500 * time.Microsecond,
		MaxTransfer:    5 * time.Millisecond,
		RetryDelay:     10 * time.Millisecond,
		DropStale:      true,
	}
}

// Capture is a double-buffered frame pipeline. Ready, Acquire, Release and
// SetMinIntegrationTime are called from a single polling goroutine.
type Capture struct {
	src  FrameSource
	cfg  CaptureConfig
	log  logrus.FieldLogger
	now  func() time.Time
	bufs [2][]byte

	free chan int   // buffers available to the transfer goroutine
	done chan Frame // completed frames waiting for the caller

	extension atomic.Int64 // integration extension in ns
	failures  atomic.Int64

	borrowed bool
	current  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCapture creates a Capture over src. Start must be called before Acquire.
func NewCapture(src FrameSource, cfg CaptureConfig, log logrus.FieldLogger) *Capture {
	if cfg.MaxTransfer <= 0 {
		cfg.MaxTransfer = DefaultCaptureConfig().MaxTransfer
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultCaptureConfig().RetryDelay
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	c := &Capture{
		src:  src,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
		free: make(chan int, 2),
		done: make(chan Frame, 1),
	}
	for i := range c.bufs {
		c.bufs[i] = make([]byte, src.Pixels())
		c.free <- i
	}
	return c
}

// Pixels returns the frame size.
func (c *Capture) Pixels() int {
	return c.src.Pixels()
}

// Start launches the transfer goroutine.
func (c *Capture) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.transfer(ctx)
}

// Stop halts the transfer goroutine and closes the source.
func (c *Capture) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.src.Close()
}

func (c *Capture) transfer(ctx context.Context) {
	defer c.wg.Done()
	for {
		var idx int
		select {
		case <-ctx.Done():
			return
		case idx = <-c.free:
		}

		integration := c.cfg.Integration + time.Duration(c.extension.Load())
		start := c.now()
		if err := c.src.Capture(c.bufs[idx], integration); err != nil {
			if n := c.failures.Add(1); n == 1 || n%1000 == 0 {
				c.log.WithError(err).WithField("failures", n).Warn("frame transfer failed")
			}
			c.free <- idx
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.RetryDelay):
			}
			continue
		}
		end := c.now()

		f := Frame{
			Pix:         c.bufs[idx],
			Time:        start.Add(end.Sub(start) / 2),
			Integration: integration,
			index:       idx,
		}
		if c.cfg.DropStale {
			// Only this goroutine sends on done, so after taking the stale
			// frame the send below cannot block.
			select {
			case stale := <-c.done:
				c.free <- stale.index
			default:
			}
		}
		select {
		case <-ctx.Done():
			return
		case c.done <- f:
		}
	}
}

// Ready reports whether a completed frame is waiting.
func (c *Capture) Ready() bool {
	return !c.borrowed && len(c.done) > 0
}

// Acquire borrows the next completed frame, waiting at most MaxTransfer.
func (c *Capture) Acquire() (Frame, error) {
	if c.borrowed {
		return Frame{}, ErrBorrowed
	}
	select {
	case f := <-c.done:
		c.borrowed = true
		c.current = f.index
		return f, nil
	default:
	}

	timer := time.NewTimer(c.cfg.MaxTransfer)
	defer timer.Stop()
	select {
	case f := <-c.done:
		c.borrowed = true
		c.current = f.index
		return f, nil
	case <-timer.C:
		return Frame{}, ErrNotReady
	}
}

// Copy acquires the next frame, copies its pixels into dst and releases it.
// The returned frame's Pix is dst.
func (c *Capture) Copy(dst []byte) (Frame, error) {
	f, err := c.Acquire()
	if err != nil {
		return Frame{}, err
	}
	n := copy(dst, f.Pix)
	if err := c.Release(f); err != nil {
		return Frame{}, fmt.Errorf("release frame: %w", err)
	}
	f.Pix = dst[:n]
	return f, nil
}

// Release hands a borrowed frame back for reuse.
func (c *Capture) Release(f Frame) error {
	if !c.borrowed || f.index != c.current {
		return ErrNotBorrowed
	}
	c.borrowed = false
	c.free <- f.index
	return nil
}

// SetMinIntegrationTime sets the integration extension applied to the next
// transfer, clamped to [0, MaxIntegration].
func (c *Capture) SetMinIntegrationTime(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if c.cfg.MaxIntegration > 0 && d > c.cfg.MaxIntegration {
		d = c.cfg.MaxIntegration
	}
	c.extension.Store(int64(d))
}

// MinIntegrationTime returns the current integration extension.
func (c *Capture) MinIntegrationTime() time.Duration {
	return time.Duration(c.extension.Load())
}

// Failures returns the number of failed transfers since start.
func (c *Capture) Failures() int64 {
	return c.failures.Load()
}
