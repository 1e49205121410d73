// Package barcode decodes absolute plunger position from a printed
// Manchester-coded Gray scale seen by a short linear image sensor.
//
// Each code bit spans BitWidth pixels split into two halves of opposite
// brightness: left half darker than the right half reads as 1, right half
// darker reads as 0. Bits are read most significant first. An optional dark
// delimiter bar, followed by a light space of the same width, marks the start.
package barcode

import (
	"fmt"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Geometry describes the printed scale as imaged on the sensor.
type Geometry struct {
	Bits           int
	BitWidth       int // pixels per bit
	Offset         int // pixel offset of the first bit; negative to detect from the delimiter
	DelimiterWidth int
	SearchWidth    int // pixels from the left edge where the delimiter may start
	Bins           int // printed positions; codes past this are unused
}

// DefaultGeometry is a 7-bit, 100-position scale on a 128-pixel sensor.
func DefaultGeometry() Geometry {
	return Geometry{
		Bits:           7,
		BitWidth:       16,
		Offset:         -1,
		DelimiterWidth: 4,
		SearchWidth:    8,
		Bins:           100,
	}
}

// Validate checks that the geometry can be decoded.
func (g Geometry) Validate() error {
	if g.Bits < 1 || g.Bits > 16 {
		return fmt.Errorf("bits %d out of range 1-16", g.Bits)
	}
	// readBit needs at least one pixel per half once boundary pixels are skipped.
	if g.BitWidth < 6 {
		return fmt.Errorf("bit width %d too small, minimum 6", g.BitWidth)
	}
	if g.Offset < 0 && g.DelimiterWidth < 2 {
		return fmt.Errorf("offset detection needs a delimiter of at least 2 pixels")
	}
	if g.Bins < 1 || g.Bins > 1<<g.Bits {
		return fmt.Errorf("bins %d out of range for %d bits", g.Bins, g.Bits)
	}
	return nil
}

// ExpectedDark returns the number of dark pixels a correctly exposed frame shows:
// the delimiter plus half of each bit.
func (g Geometry) ExpectedDark() int {
	return g.DelimiterWidth + g.Bits*g.BitWidth/2
}

// Config tunes the decoder.
type Config struct {
	Geometry Geometry
	// MinDelta is the minimum average per-pixel brightness difference between
	// the halves of a bit.
	MinDelta int
}

// DefaultConfig returns the standard decoder tuning.
func DefaultConfig() Config {
	return Config{Geometry: DefaultGeometry(), MinDelta: 8}
}

// Decoder decodes frames for one geometry.
type Decoder struct {
	cfg   Config
	table *GrayTable
	last  plunger.BarCode
}

// NewDecoder creates a Decoder. The Gray table is shared when the geometry
// matches the default.
func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("bar code geometry: %w", err)
	}
	if cfg.MinDelta <= 0 {
		cfg.MinDelta = DefaultConfig().MinDelta
	}
	table := DefaultTable
	g := cfg.Geometry
	if g.Bits != table.Bits() || g.Bins != DefaultGeometry().Bins {
		table = NewGrayTable(g.Bits, g.Bins)
	}
	return &Decoder{cfg: cfg, table: table}, nil
}

// Geometry returns the decoder's geometry.
func (d *Decoder) Geometry() Geometry {
	return d.cfg.Geometry
}

// Last returns the diagnostics of the most recent frame.
func (d *Decoder) Last() plunger.BarCode {
	return d.last
}

// Process decodes one frame and returns the bin index.
func (d *Decoder) Process(pix []byte) (int, error) {
	g := d.cfg.Geometry
	d.last = plunger.BarCode{Offset: -1, Bits: g.Bits}

	offset := g.Offset
	if offset < 0 {
		var ok bool
		if offset, ok = d.findStart(pix); !ok {
			return 0, fmt.Errorf("no delimiter: %w", plunger.ErrNoReading)
		}
	}
	d.last.Offset = offset
	if offset+g.Bits*g.BitWidth > len(pix) {
		return 0, fmt.Errorf("code at %d overruns %d pixels: %w", offset, len(pix), plunger.ErrDecodeInconsistent)
	}

	var code, mask uint32
	for b := 0; b < g.Bits; b++ {
		bit, ok := d.readBit(pix[offset+b*g.BitWidth : offset+(b+1)*g.BitWidth])
		code <<= 1
		mask <<= 1
		if ok {
			code |= bit
			mask |= 1
		}
	}
	d.last.Code = code
	d.last.Mask = mask

	if full := uint32(1)<<g.Bits - 1; mask != full {
		return 0, fmt.Errorf("unreadable bits (mask %#x): %w", mask, plunger.ErrDecodeInconsistent)
	}
	bin, ok := d.table.Lookup(code)
	if !ok {
		return 0, fmt.Errorf("unused code %#x: %w", code, plunger.ErrDecodeInconsistent)
	}
	return bin, nil
}

// readBit classifies one bit span. Pixels next to each half boundary are
// skipped since they pick up light from the neighbouring half.
func (d *Decoder) readBit(span []byte) (uint32, bool) {
	half := len(span) / 2
	m := 1
	if half >= 6 {
		m = 2
	}
	left, right := 0, 0
	for i := m; i < half-m; i++ {
		left += int(span[i])
		right += int(span[half+i])
	}
	n := half - 2*m
	minDelta := d.cfg.MinDelta * n
	switch {
	case right-left > minDelta:
		return 1, true
	case left-right > minDelta:
		return 0, true
	}
	return 0, false
}

// findStart locates the delimiter: the first sustained run of pixels darker
// than the average of the left margin. The code starts one bar and one space later.
func (d *Decoder) findStart(pix []byte) (int, bool) {
	g := d.cfg.Geometry
	w := g.DelimiterWidth
	end := g.SearchWidth + 2*w
	if end > len(pix) {
		end = len(pix)
	}
	sum := 0
	for i := 0; i < end; i++ {
		sum += int(pix[i])
	}
	avg := sum / end

	need := w - 1
	run := 0
	for i := 0; i < end; i++ {
		if int(pix[i]) < avg {
			run++
			if run >= need {
				return i - run + 1 + 2*w, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

// Render draws the scale for bin into dst with the code starting at offset.
// It is used by the simulator and tests.
func Render(dst []byte, g Geometry, offset, bin int, light, dark byte) {
	for i := range dst {
		dst[i] = light
	}
	fill := func(from, to int, v byte) {
		for i := from; i < to; i++ {
			if i >= 0 && i < len(dst) {
				dst[i] = v
			}
		}
	}
	if g.DelimiterWidth > 0 {
		fill(offset-2*g.DelimiterWidth, offset-g.DelimiterWidth, dark)
	}
	code := Encode(bin)
	half := g.BitWidth / 2
	for b := 0; b < g.Bits; b++ {
		start := offset + b*g.BitWidth
		if code&(1<<(g.Bits-1-b)) != 0 {
			fill(start, start+half, dark)
		} else {
			fill(start+half, start+g.BitWidth, dark)
		}
	}
}
