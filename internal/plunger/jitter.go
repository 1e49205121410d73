package plunger

// JitterFilter is a dead-band filter. It keeps a window [low, high] of fixed width;
// readings inside the window repeat the previous output, readings outside drag the
// window along and output its midpoint.
type JitterFilter struct {
	window int
	low    int
	high   int
	last   int
	primed bool
}

// NewJitterFilter creates a filter with the given window width. Zero disables filtering.
func NewJitterFilter(window int) *JitterFilter {
	f := &JitterFilter{}
	f.SetWindow(window)
	return f
}

// SetWindow changes the window width and resets the filter.
func (f *JitterFilter) SetWindow(window int) {
	if window < 0 {
		window = 0
	}
	f.window = window
	f.primed = false
}

// Window returns the configured window width.
func (f *JitterFilter) Window() int {
	return f.window
}

// Bounds returns the current window and last output. ok is false before the first sample.
func (f *JitterFilter) Bounds() (low, high, last int, ok bool) {
	return f.low, f.high, f.last, f.primed
}

// Apply filters one reading.
func (f *JitterFilter) Apply(v int) int {
	if !f.primed {
		f.low = v - f.window/2
		f.high = f.low + f.window
		f.last = v
		f.primed = true
		return v
	}

	switch {
	case v < f.low:
		f.low = v
		f.high = v + f.window
	case v > f.high:
		f.high = v
		f.low = v - f.window
	default:
		return f.last
	}
	f.last = (f.low + f.high) / 2
	return f.last
}
