// Package simulator provides virtual plunger hardware for bench runs without a
// cabinet: a motion model and frame, ADC and quadrature sources that follow it.
package simulator

import (
	"math"
	"time"
)

// Motion is a repeating pull-and-release cycle. Positions are fractions of the
// full travel: 0 is fully forward, 1 fully retracted.
type Motion struct {
	Rest    float64       // spring equilibrium
	Period  time.Duration // one full cycle
	Pull    time.Duration // time to draw the plunger back
	Hold    time.Duration // time held at full retraction
	Release time.Duration // travel time from full retraction to rest
	Bounce  float64       // overshoot past rest as a fraction of travel, decaying
	Start   time.Time
}

// DefaultMotion pulls for a second, holds half a second and releases in 40ms every five seconds.
func DefaultMotion(start time.Time) Motion {
	return Motion{
		Rest:    1.0 / 6,
		Period:  5 * time.Second,
		Pull:    time.Second,
		Hold:    500 * time.Millisecond,
		Release: 40 * time.Millisecond,
		Bounce:  0.1,
		Start:   start,
	}
}

// At returns the position at t.
func (m Motion) At(t time.Time) float64 {
	if m.Period <= 0 {
		return m.Rest
	}
	d := t.Sub(m.Start) % m.Period
	if d < 0 {
		d += m.Period
	}

	switch {
	case d < m.Pull:
		f := float64(d) / float64(m.Pull)
		return m.Rest + (1-m.Rest)*f
	case d < m.Pull+m.Hold:
		return 1
	}

	d -= m.Pull + m.Hold
	if d < m.Release {
		// Spring acceleration: position falls with the square of elapsed time.
		f := float64(d) / float64(m.Release)
		return 1 - (1-m.Rest)*f*f
	}

	// Damped oscillation about rest.
	d -= m.Release
	osc := float64(d) / float64(m.Release)
	v := m.Rest - m.Bounce*math.Exp(-osc/2)*math.Sin(osc*math.Pi/2)
	return math.Max(0, math.Min(1, v))
}
