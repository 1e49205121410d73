package analog

import (
	"errors"
	"sync"
)

// FakeADC is a test double that returns scripted conversions.
type FakeADC struct {
	mu sync.Mutex

	// Values contains scripted conversions. Each Read consumes the next one;
	// the last value repeats once the script is exhausted.
	Values []int

	// Resolution is returned by Bits.
	Resolution int

	// ReadError, if set, is returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	index int
}

// NewFakeADC creates a FakeADC with the given resolution and values.
func NewFakeADC(bits int, values ...int) *FakeADC {
	return &FakeADC{Resolution: bits, Values: values}
}

// Read returns the next scripted value.
func (f *FakeADC) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Bits returns Resolution.
func (f *FakeADC) Bits() int {
	return f.Resolution
}

// Close marks the ADC as closed.
func (f *FakeADC) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
