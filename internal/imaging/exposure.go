package imaging

import "time"

// Exposure is a bounded integer feedback controller for the integration extension.
// It never leaves [0, max], so a runaway adjustment cannot stall capture.
type Exposure struct {
	ext  time.Duration
	step time.Duration
	max  time.Duration
}

// NewExposure creates a controller that moves by step within [0, max].
func NewExposure(step, max time.Duration) *Exposure {
	if step <= 0 {
		step = 50 * time.Microsecond
	}
	if max < 0 {
		max = 0
	}
	return &Exposure{step: step, max: max}
}

// Nudge moves the extension one step longer (dir > 0) or shorter (dir < 0).
func (e *Exposure) Nudge(dir int) time.Duration {
	switch {
	case dir > 0:
		e.ext += e.step
	case dir < 0:
		e.ext -= e.step
	}
	if e.ext < 0 {
		e.ext = 0
	}
	if e.ext > e.max {
		e.ext = e.max
	}
	return e.ext
}

// Extension returns the current extension.
func (e *Exposure) Extension() time.Duration {
	return e.ext
}

// Max returns the upper bound.
func (e *Exposure) Max() time.Duration {
	return e.max
}
