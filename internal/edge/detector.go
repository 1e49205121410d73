// Package edge locates the shadow cast by the plunger tip on a linear image sensor.
package edge

import (
	"fmt"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// ScanMode selects the edge search strategy. It is fixed at construction.
type ScanMode int

const (
	// ScanGap sweeps two summing windows separated by a gap sized from the
	// plunger's recent motion, and picks the steepest brightness drop.
	ScanGap ScanMode = iota
	// ScanMidpoint picks the first pixel darker than the midpoint between the
	// lit and shadowed ends. Cheaper, but smeared by motion blur.
	ScanMidpoint
)

func (m ScanMode) String() string {
	switch m {
	case ScanGap:
		return "gap"
	case ScanMidpoint:
		return "midpoint"
	default:
		return fmt.Sprintf("ScanMode(%d)", int(m))
	}
}

// ParseScanMode parses "gap" or "midpoint". The empty string selects ScanGap.
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "", "gap":
		return ScanGap, nil
	case "midpoint":
		return ScanMidpoint, nil
	}
	return 0, fmt.Errorf("unknown scan mode %q", s)
}

// Config tunes the detector.
type Config struct {
	Mode       ScanMode
	EndSamples int // pixels averaged at each end to find the lit end
	EndMargin  int // brightness difference required between the ends
	Window     int // width of each summing window
	MinGap     int
	MaxGap     int
	MinSlope   int // minimum average per-pixel drop across the gap
}

// DefaultConfig returns the standard detector tuning.
func DefaultConfig() Config {
	return Config{
		Mode:       ScanGap,
		EndSamples: 5,
		EndMargin:  10,
		Window:     8,
		MinGap:     3,
		MaxGap:     175,
		MinSlope:   2,
	}
}

// Detector finds the shadow edge in successive frames.
// It remembers the last two positions to size the search gap to the motion blur.
type Detector struct {
	cfg   Config
	dir   plunger.Orientation
	last  int
	prev  int
	count int
}

// NewDetector creates a Detector, filling zero fields of cfg from DefaultConfig.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.EndSamples <= 0 {
		cfg.EndSamples = def.EndSamples
	}
	if cfg.EndMargin <= 0 {
		cfg.EndMargin = def.EndMargin
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = def.MinGap
	}
	if cfg.MaxGap < cfg.MinGap {
		cfg.MaxGap = def.MaxGap
	}
	if cfg.MinSlope <= 0 {
		cfg.MinSlope = def.MinSlope
	}
	return &Detector{cfg: cfg}
}

// Orientation returns the direction detected in the last successfully oriented frame.
func (d *Detector) Orientation() plunger.Orientation {
	return d.dir
}

// Process returns the physical pixel index of the first shadowed pixel.
func (d *Detector) Process(pix []byte) (int, error) {
	n := len(pix)
	if n < 2*d.cfg.EndSamples || n < 2*d.cfg.Window+d.cfg.MinGap {
		return 0, fmt.Errorf("frame too short (%d pixels): %w", n, plunger.ErrNoReading)
	}

	dir, err := d.orient(pix)
	if err != nil {
		return 0, err
	}
	d.dir = dir

	px := func(i int) int { return int(pix[i]) }
	if dir == plunger.OrientationReversed {
		px = func(i int) int { return int(pix[n-1-i]) }
	}

	var pos int
	switch d.cfg.Mode {
	case ScanMidpoint:
		pos, err = d.scanMidpoint(px, n)
	default:
		pos, err = d.scanGap(px, n)
	}
	if err != nil {
		return 0, err
	}

	if dir == plunger.OrientationReversed {
		pos = n - 1 - pos
	}
	d.prev = d.last
	d.last = pos
	if d.count < 2 {
		d.count++
	}
	return pos, nil
}

// orient compares the averages of both ends of the frame.
func (d *Detector) orient(pix []byte) (plunger.Orientation, error) {
	a, b := d.ends(pix)
	switch {
	case a > b+d.cfg.EndMargin:
		return plunger.OrientationStandard, nil
	case b > a+d.cfg.EndMargin:
		return plunger.OrientationReversed, nil
	}
	return plunger.OrientationUnknown, plunger.ErrOrientationUnknown
}

func (d *Detector) ends(pix []byte) (first, last int) {
	k := d.cfg.EndSamples
	n := len(pix)
	for i := 0; i < k; i++ {
		first += int(pix[i])
		last += int(pix[n-1-i])
	}
	return first / k, last / k
}

// gap sizes the dead zone between the windows from the distance the plunger
// moved between the last two frames.
func (d *Detector) gap(n int) int {
	g := d.cfg.MinGap
	if d.count >= 2 {
		g = d.last - d.prev
		if g < 0 {
			g = -g
		}
	}
	if g < d.cfg.MinGap {
		g = d.cfg.MinGap
	}
	if g > d.cfg.MaxGap {
		g = d.cfg.MaxGap
	}
	if lim := n - 2*d.cfg.Window; g > lim {
		g = lim
	}
	return g
}

// scanGap works in logical coordinates (lit end at 0). The bright window covers
// [i-w, i), the dark window [i+gap, i+gap+w).
func (d *Detector) scanGap(px func(int) int, n int) (int, error) {
	w := d.cfg.Window
	gap := d.gap(n)

	bright, dark := 0, 0
	for j := 0; j < w; j++ {
		bright += px(j)
		dark += px(w + gap + j)
	}

	maxSlope := -1 << 31
	runStart, runEnd := -1, -1
	last := w
	for i := w; ; i++ {
		slope := bright - dark
		switch {
		case slope > maxSlope:
			maxSlope = slope
			runStart, runEnd = i, i
		case slope == maxSlope && runEnd == i-1:
			runEnd = i
		}
		if i+gap+w >= n {
			last = i
			break
		}
		bright += px(i) - px(i-w)
		dark += px(i+gap+w) - px(i+gap)
	}

	if maxSlope < d.cfg.MinSlope*w {
		return 0, fmt.Errorf("insufficient contrast (slope %d): %w", maxSlope, plunger.ErrNoReading)
	}
	return plateauEdge(runStart, runEnd, w, last, gap), nil
}

// plateauEdge locates a sharp edge from the run of maximum slope, which spans
// [edge-gap, edge]. The sweep covers [first, last] only, so near either end of
// the frame one side of the run is cut off and the other side is used alone.
func plateauEdge(runStart, runEnd, first, last, gap int) int {
	switch {
	case runStart == first && runEnd < last:
		return runEnd
	case runEnd == last && runStart > first:
		return runStart + gap
	}
	return (runStart + runEnd + gap) / 2
}

func (d *Detector) scanMidpoint(px func(int) int, n int) (int, error) {
	k := d.cfg.EndSamples
	bright, dark := 0, 0
	for i := 0; i < k; i++ {
		bright += px(i)
		dark += px(n - 1 - i)
	}
	bright /= k
	dark /= k
	if bright-dark < d.cfg.MinSlope*d.cfg.Window {
		return 0, fmt.Errorf("insufficient contrast (%d): %w", bright-dark, plunger.ErrNoReading)
	}
	mid := (bright + dark) / 2
	for i := 0; i < n; i++ {
		if px(i) < mid {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no midpoint crossing: %w", plunger.ErrNoReading)
}
