package plunger

import (
	"time"
)

// JoystickMax is the calibrated value reported at full retraction.
const JoystickMax = 4096

// DefaultReleaseTime is the release time assumed until one has been measured.
const DefaultReleaseTime = 65 * time.Millisecond

// Calibration bounds, all in native units.
type Calibration struct {
	Min         int
	Zero        int // spring-equilibrium rest position
	Max         int // full retraction
	ReleaseTime time.Duration
}

// DefaultCalibration returns conservative bounds covering the full native range.
func DefaultCalibration(nativeScale int) Calibration {
	return Calibration{
		Min:         0,
		Zero:        nativeScale / 6,
		Max:         nativeScale,
		ReleaseTime: DefaultReleaseTime,
	}
}

// Valid reports whether the bounds are ordered and non-degenerate.
func (c Calibration) Valid() bool {
	return c.Min <= c.Zero && c.Zero < c.Max
}

// Apply maps a native position to calibrated joystick units: Zero maps to 0,
// Max maps to JoystickMax, positions forward of Zero are negative.
func (c Calibration) Apply(raw int) int {
	span := c.Max - c.Zero
	if span <= 0 {
		return 0
	}
	v := (raw - c.Zero) * JoystickMax / span
	return clamp(v, -JoystickMax, JoystickMax)
}

// Tuning parameters for calibration learning.
const (
	// restBandFraction is the rest detection band as a fraction (1/n) of native scale.
	restBandFraction = 100
	// restSettle is how long the plunger must stay inside the band to count as at rest.
	restSettle = 200 * time.Millisecond
	// releaseStartFraction: a release must start within 1/n of the range below Max.
	releaseStartFraction = 4
	// minReleaseFraction: releases are only timed once the range exceeds 1/n of native scale.
	minReleaseFraction = 10
	// maxRelease bounds a plausible release; slower forward moves are pushes, not releases.
	maxRelease = 250 * time.Millisecond
)

// Calibrator learns calibration bounds from live readings between Begin and End.
// It is owned by the polling loop and not safe for concurrent use.
type Calibrator struct {
	nativeScale int
	cal         Calibration
	saved       Calibration
	learning    bool
	primed      bool

	// rest averaging
	restAnchor int
	restSince  time.Time
	restSum    int64
	restN      int64

	// release timing
	prev         RawReading
	releaseStart time.Time
	releasing    bool
	releaseSum   time.Duration
	releaseCount int
}

// NewCalibrator creates a Calibrator starting from cal.
func NewCalibrator(nativeScale int, cal Calibration) *Calibrator {
	if !cal.Valid() {
		cal = DefaultCalibration(nativeScale)
	}
	return &Calibrator{nativeScale: nativeScale, cal: cal}
}

// Calibration returns the current record.
func (c *Calibrator) Calibration() Calibration {
	return c.cal
}

// Set replaces the current record, e.g. after loading from persistent storage.
// Invalid records are ignored.
func (c *Calibrator) Set(cal Calibration) bool {
	if !cal.Valid() {
		return false
	}
	c.cal = cal
	return true
}

// Learning reports whether calibration is in progress.
func (c *Calibrator) Learning() bool {
	return c.learning
}

// Begin enters learning mode. The bounds collapse so that the first readings define them.
// It does nothing while learning is already in progress.
func (c *Calibrator) Begin() {
	if c.learning {
		return
	}
	c.saved = c.cal
	c.cal = Calibration{
		Min:         c.nativeScale,
		Zero:        c.nativeScale,
		Max:         0,
		ReleaseTime: c.saved.ReleaseTime,
	}
	c.learning = true
	c.primed = false
	c.restSum, c.restN = 0, 0
	c.releasing = false
	c.releaseSum, c.releaseCount = 0, 0
}

// Observe feeds one native reading to the learner. It does nothing outside learning mode.
func (c *Calibrator) Observe(r RawReading) {
	if !c.learning {
		return
	}
	if r.Pos < c.cal.Min {
		c.cal.Min = r.Pos
	}
	if r.Pos < c.cal.Zero {
		c.cal.Zero = r.Pos
	}
	if r.Pos > c.cal.Max {
		c.cal.Max = r.Pos
	}

	if !c.primed {
		c.primed = true
		c.restAnchor = r.Pos
		c.restSince = r.Time
		c.prev = r
		return
	}
	c.observeRest(r)
	c.observeRelease(r)
	c.prev = r
}

func (c *Calibrator) observeRest(r RawReading) {
	band := c.nativeScale / restBandFraction
	if band < 1 {
		band = 1
	}
	d := r.Pos - c.restAnchor
	if d < -band || d > band {
		c.restAnchor = r.Pos
		c.restSince = r.Time
		return
	}
	if r.Time.Sub(c.restSince) >= restSettle {
		c.restSum += int64(r.Pos)
		c.restN++
	}
}

func (c *Calibrator) observeRelease(r RawReading) {
	rng := c.cal.Max - c.cal.Min
	if rng < c.nativeScale/minReleaseFraction {
		return
	}
	forward := r.Pos < c.prev.Pos
	if !c.releasing {
		if forward && c.prev.Pos >= c.cal.Max-rng/releaseStartFraction {
			c.releasing = true
			c.releaseStart = c.prev.Time
		}
		return
	}
	elapsed := r.Time.Sub(c.releaseStart)
	switch {
	case elapsed > maxRelease:
		c.releasing = false
	case r.Pos <= c.restReference():
		c.releaseSum += elapsed
		c.releaseCount++
		c.releasing = false
	case r.Pos > c.prev.Pos:
		c.releasing = false
	}
}

// restReference is the best current estimate of the rest position.
func (c *Calibrator) restReference() int {
	if c.restN > 0 {
		return int(c.restSum / c.restN)
	}
	return c.saved.Zero
}

// End leaves learning mode and returns the frozen record. If learning did not see a
// usable range, the previous record is restored.
func (c *Calibrator) End() Calibration {
	if !c.learning {
		return c.cal
	}
	c.learning = false

	if c.restN > 0 {
		c.cal.Zero = clamp(int(c.restSum/c.restN), c.cal.Min, c.cal.Max)
	}
	if c.releaseCount > 0 {
		c.cal.ReleaseTime = (c.releaseSum / time.Duration(c.releaseCount)).Round(time.Millisecond)
	}
	if !c.cal.Valid() {
		c.cal = c.saved
	}
	return c.cal
}
