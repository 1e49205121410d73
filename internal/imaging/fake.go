package imaging

import (
	"errors"
	"sync"
	"time"
)

// FakeSource is a test double that returns scripted frames.
type FakeSource struct {
	mu sync.Mutex

	// Frames contains scripted frames. Each Capture consumes the next one;
	// the last frame repeats once the script is exhausted.
	Frames [][]byte

	// CaptureError, if set, is returned by Capture.
	CaptureError error

	// Integrations records the integration time passed to each Capture.
	Integrations []time.Duration

	// Closed tracks if Close was called.
	Closed bool

	pixels int
	index  int
}

// NewFakeSource creates a FakeSource producing frames of n pixels.
func NewFakeSource(n int, frames ...[]byte) *FakeSource {
	return &FakeSource{pixels: n, Frames: frames}
}

// Pixels returns the frame size.
func (f *FakeSource) Pixels() int {
	return f.pixels
}

// Capture copies the next scripted frame into dst.
func (f *FakeSource) Capture(dst []byte, integration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CaptureError != nil {
		return f.CaptureError
	}
	if len(f.Frames) == 0 {
		return errors.New("no frames configured")
	}
	f.Integrations = append(f.Integrations, integration)
	copy(dst, f.Frames[f.index])
	if f.index < len(f.Frames)-1 {
		f.index++
	}
	return nil
}

// SetFrames replaces the script and restarts it.
func (f *FakeSource) SetFrames(frames ...[]byte) {
	f.mu.Lock()
	f.Frames = frames
	f.index = 0
	f.mu.Unlock()
}

// LastIntegration returns the integration time of the most recent capture.
func (f *FakeSource) LastIntegration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Integrations) == 0 {
		return 0
	}
	return f.Integrations[len(f.Integrations)-1]
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
