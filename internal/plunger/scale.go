package plunger

// Scaler converts native readings to the normalized range with a fixed-point
// multiplier so that no division happens per read.
type Scaler struct {
	nativeScale int
	factor      uint64
}

// NewScaler creates a Scaler for a sensor whose native range is [0, nativeScale).
// A non-positive scale is treated as 1.
func NewScaler(nativeScale int) Scaler {
	if nativeScale < 1 {
		nativeScale = 1
	}
	return Scaler{
		nativeScale: nativeScale,
		factor:      uint64(MaxPosition) * 65536 / uint64(nativeScale),
	}
}

// NativeScale returns the native range size.
func (s Scaler) NativeScale() int {
	return s.nativeScale
}

// Normalize maps a native position onto 0..MaxPosition.
// Out-of-range inputs (relative sensors can overrun) are clamped.
func (s Scaler) Normalize(raw int) int {
	raw = clamp(raw, 0, s.nativeScale)
	n := int((s.factor*uint64(raw) + 32768) >> 16)
	if n > MaxPosition {
		n = MaxPosition
	}
	return n
}

// Orient applies the orientation flip.
func (s Scaler) Orient(raw int, reversed bool) int {
	if reversed {
		return s.nativeScale - raw
	}
	return raw
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
