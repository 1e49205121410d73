// Package quadrature counts plunger motion from a two-channel quadrature sensor.
//
// The phase is a 2-bit value with channel A in bit 0 and channel B in bit 1.
// Moving forward steps the phase through 0, 1, 3, 2 and back to 0.
//
// Edges arrive on the GPIO event goroutine while the polling loop reads the
// position. The two sides share only atomic words: the position counter, the
// invalid-transition count and the phase.
package quadrature

import "sync/atomic"

// transitions maps old<<2|new to the step direction. Zero entries are invalid:
// the diagonal (no change) and the non-adjacent jumps (a missed edge).
var transitions = [16]int8{
	0, +1, -1, 0, // from 0
	-1, 0, 0, +1, // from 1
	+1, 0, 0, -1, // from 2
	0, -1, +1, 0, // from 3
}

// Direction returns +1 or -1 for a valid transition between phases and 0 for an
// invalid one. Phases are masked to 2 bits.
func Direction(from, to uint8) int {
	return int(transitions[(from&3)<<2|to&3])
}

// Counter is a relative position counter. The zero value starts at position 0, phase 0.
type Counter struct {
	pos     atomic.Int32
	invalid atomic.Uint64
	phase   atomic.Uint32
}

// SetPhase sets the current phase from the line levels, without counting.
func (c *Counter) SetPhase(a, b bool) {
	c.phase.Store(uint32(phaseOf(a, b)))
}

// Phase returns the current phase.
func (c *Counter) Phase() uint8 {
	return uint8(c.phase.Load())
}

// Edge applies a level change on channel (0 = A, 1 = B). It is the only
// writer of the phase and is called from a single goroutine.
func (c *Counter) Edge(channel int, level bool) {
	old := uint8(c.phase.Load())
	bit := uint8(1) << (channel & 1)
	next := old &^ bit
	if level {
		next |= bit
	}
	if d := Direction(old, next); d != 0 {
		c.pos.Add(int32(d))
	} else {
		c.invalid.Add(1)
	}
	// Resynchronize even on an invalid transition so one missed edge costs one count.
	c.phase.Store(uint32(next))
}

// Position returns the current count.
func (c *Counter) Position() int {
	return int(c.pos.Load())
}

// Set overwrites the count.
func (c *Counter) Set(v int) {
	c.pos.Store(int32(v))
}

// Invalid returns the number of invalid transitions seen.
func (c *Counter) Invalid() uint64 {
	return c.invalid.Load()
}

func phaseOf(a, b bool) uint8 {
	var p uint8
	if a {
		p |= 1
	}
	if b {
		p |= 2
	}
	return p
}
