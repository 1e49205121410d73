package gpio

import (
	"errors"
	"sync"
)

// FakeEdges is a test double driven by Emit and Step.
type FakeEdges struct {
	mu      sync.Mutex
	handler EdgeHandler
	a, b    bool

	// WatchError, if set, is returned by Watch.
	WatchError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeEdges creates a FakeEdges with the given initial levels.
func NewFakeEdges(a, b bool) *FakeEdges {
	return &FakeEdges{a: a, b: b}
}

// Watch records the handler.
func (f *FakeEdges) Watch(h EdgeHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchError != nil {
		return f.WatchError
	}
	if f.handler != nil {
		return errors.New("already watching")
	}
	f.handler = h
	return nil
}

// Levels returns the current levels.
func (f *FakeEdges) Levels() (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.a, f.b, nil
}

// Emit sets a channel level and delivers the edge synchronously.
// Edges emitted before Watch or after Close change the level silently.
func (f *FakeEdges) Emit(channel int, level bool) {
	f.mu.Lock()
	if channel == ChannelA {
		f.a = level
	} else {
		f.b = level
	}
	h := f.handler
	if f.Closed {
		h = nil
	}
	f.mu.Unlock()
	if h != nil {
		h(channel, level)
	}
}

// Step emits n forward (n > 0) or backward (n < 0) quadrature steps,
// one edge per step.
func (f *FakeEdges) Step(n int) {
	for ; n > 0; n-- {
		f.mu.Lock()
		a, b := f.a, f.b
		f.mu.Unlock()
		// Forward: 00 -> A -> AB -> B -> 00.
		if a == b {
			f.Emit(ChannelA, !a)
		} else {
			f.Emit(ChannelB, a)
		}
	}
	for ; n < 0; n++ {
		f.mu.Lock()
		a, b := f.a, f.b
		f.mu.Unlock()
		if a == b {
			f.Emit(ChannelB, !b)
		} else {
			f.Emit(ChannelA, b)
		}
	}
}

// Close stops delivery.
func (f *FakeEdges) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
