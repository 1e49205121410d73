//go:build !linux

package gpio

import "errors"

// RealWatcher is not available on non-Linux platforms.
type RealWatcher struct{}

// NewRealWatcher returns a watcher whose Watch always fails on non-Linux platforms.
func NewRealWatcher(chip string, pinA, pinB int, pullUp bool) *RealWatcher {
	return &RealWatcher{}
}

// Watch is not implemented on non-Linux platforms.
func (w *RealWatcher) Watch(h EdgeHandler) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}

// Levels is not implemented on non-Linux platforms.
func (w *RealWatcher) Levels() (bool, bool, error) {
	return false, false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (w *RealWatcher) Close() error {
	return nil
}
