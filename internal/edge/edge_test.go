package edge

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/plunger-sensor/internal/imaging"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// shadowFrame builds a frame lit on [0, edge) and shadowed from edge on,
// with an optional linear blur of the given width centred on the edge.
func shadowFrame(n, edge int, bright, dark byte, blur int) []byte {
	pix := make([]byte, n)
	for i := range pix {
		switch {
		case blur > 0 && i >= edge-blur/2 && i < edge+blur-blur/2:
			k := i - (edge - blur/2)
			pix[i] = byte(int(bright) - (int(bright)-int(dark))*(2*k+1)/(2*blur))
		case i < edge:
			pix[i] = bright
		default:
			pix[i] = dark
		}
	}
	return pix
}

func reversed(pix []byte) []byte {
	out := make([]byte, len(pix))
	for i := range pix {
		out[len(pix)-1-i] = pix[i]
	}
	return out
}

func TestDetectorSharpEdge(t *testing.T) {
	for _, e := range []int{20, 100, 640, 1259} {
		d := NewDetector(DefaultConfig())
		pos, err := d.Process(shadowFrame(1280, e, 220, 20, 0))
		if err != nil {
			t.Fatalf("edge %d: %v", e, err)
		}
		if pos != e {
			t.Errorf("edge %d: got %d", e, pos)
		}
		if d.Orientation() != plunger.OrientationStandard {
			t.Errorf("edge %d: orientation %v, want standard", e, d.Orientation())
		}
	}
}

func TestDetectorOrientationInvariance(t *testing.T) {
	const n = 1280
	for _, mode := range []ScanMode{ScanGap, ScanMidpoint} {
		for _, tc := range []struct{ edge, blur int }{{40, 0}, {333, 6}, {700, 15}, {1200, 3}} {
			frame := shadowFrame(n, tc.edge, 200, 30, tc.blur)

			cfg := DefaultConfig()
			cfg.Mode = mode
			pos, err := NewDetector(cfg).Process(frame)
			if err != nil {
				t.Fatalf("%v edge %d: %v", mode, tc.edge, err)
			}

			rd := NewDetector(cfg)
			rpos, err := rd.Process(reversed(frame))
			if err != nil {
				t.Fatalf("%v edge %d reversed: %v", mode, tc.edge, err)
			}
			if rd.Orientation() != plunger.OrientationReversed {
				t.Errorf("%v edge %d: orientation %v, want reversed", mode, tc.edge, rd.Orientation())
			}
			if diff := rpos - (n - 1 - pos); diff < -1 || diff > 1 {
				t.Errorf("%v edge %d: reversed position %d, want %d", mode, tc.edge, rpos, n-1-pos)
			}
		}
	}
}

func TestDetectorBlurredEdge(t *testing.T) {
	d := NewDetector(DefaultConfig())
	pos, err := d.Process(shadowFrame(1280, 500, 230, 20, 20))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if pos < 498 || pos > 502 {
		t.Errorf("blurred edge: got %d, want 500 +/- 2", pos)
	}
}

func TestDetectorUniformFrame(t *testing.T) {
	for _, level := range []byte{0, 128, 255} {
		d := NewDetector(DefaultConfig())
		_, err := d.Process(shadowFrame(1280, 0, level, level, 0))
		if !errors.Is(err, plunger.ErrNoReading) {
			t.Errorf("level %d: got %v, want ErrNoReading", level, err)
		}
		if !errors.Is(err, plunger.ErrOrientationUnknown) {
			t.Errorf("level %d: got %v, want ErrOrientationUnknown", level, err)
		}
	}
}

func TestDetectorLowContrastEdge(t *testing.T) {
	// Ends differ enough to orient, but the drop is spread over the whole frame.
	n := 256
	pix := make([]byte, n)
	for i := range pix {
		pix[i] = byte(140 - i*20/n)
	}
	cfg := DefaultConfig()
	cfg.EndMargin = 5
	_, err := NewDetector(cfg).Process(pix)
	if !errors.Is(err, plunger.ErrNoReading) {
		t.Errorf("got %v, want ErrNoReading", err)
	}
}

func TestDetectorShortFrame(t *testing.T) {
	_, err := NewDetector(DefaultConfig()).Process(make([]byte, 8))
	if !errors.Is(err, plunger.ErrNoReading) {
		t.Errorf("got %v, want ErrNoReading", err)
	}
}

func TestDetectorGapTracksMotion(t *testing.T) {
	d := NewDetector(DefaultConfig())
	if g := d.gap(1280); g != 3 {
		t.Errorf("initial gap: got %d, want 3", g)
	}
	d.Process(shadowFrame(1280, 300, 220, 20, 0))
	d.Process(shadowFrame(1280, 340, 220, 20, 0))
	if g := d.gap(1280); g != 40 {
		t.Errorf("gap after 40px move: got %d, want 40", g)
	}
	d.Process(shadowFrame(1280, 1000, 220, 20, 0))
	if g := d.gap(1280); g != 175 {
		t.Errorf("gap after large move: got %d, want 175 (clamped)", g)
	}
}

func TestDetectorLargeGapNearEnds(t *testing.T) {
	const n = 1280
	// Two frames 120 px apart widen the gap to 120 before each target frame.
	primed := func() *Detector {
		d := NewDetector(DefaultConfig())
		d.Process(shadowFrame(n, 400, 220, 20, 0))
		d.Process(shadowFrame(n, 280, 220, 20, 0))
		if g := d.gap(n); g != 120 {
			t.Fatalf("gap: got %d, want 120", g)
		}
		return d
	}
	for _, e := range []int{20, 60, 160, 640, 1200, 1250} {
		pos, err := primed().Process(shadowFrame(n, e, 220, 20, 0))
		if err != nil {
			t.Fatalf("edge %d: %v", e, err)
		}
		if pos != e {
			t.Errorf("edge %d: got %d", e, pos)
		}

		rpos, err := primed().Process(reversed(shadowFrame(n, e, 220, 20, 0)))
		if err != nil {
			t.Fatalf("edge %d reversed: %v", e, err)
		}
		if rpos != n-1-e {
			t.Errorf("edge %d reversed: got %d, want %d", e, rpos, n-1-e)
		}
	}
}

func TestDetectorFastMotionBlur(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Process(shadowFrame(1280, 200, 220, 20, 0))
	d.Process(shadowFrame(1280, 260, 220, 20, 0))
	// 60 px of motion blur in the next frame.
	pos, err := d.Process(shadowFrame(1280, 320, 220, 20, 60))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if pos < 317 || pos > 323 {
		t.Errorf("blurred position: got %d, want 320 +/- 3", pos)
	}
}

func TestParseScanMode(t *testing.T) {
	tests := []struct {
		in   string
		want ScanMode
		ok   bool
	}{
		{"", ScanGap, true},
		{"gap", ScanGap, true},
		{"midpoint", ScanMidpoint, true},
		{"steepest", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseScanMode(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("%q: err = %v", tt.in, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func newTestSensor(t *testing.T, src *imaging.FakeSource, exp *imaging.Exposure) *Sensor {
	t.Helper()
	c := imaging.NewCapture(src, imaging.CaptureConfig{MaxTransfer: time.Second, MaxIntegration: 2500 * time.Microsecond}, nil)
	s := NewSensor(c, NewDetector(DefaultConfig()), exp)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSensorReadRaw(t *testing.T) {
	src := imaging.NewFakeSource(1280, shadowFrame(1280, 400, 200, 20, 0))
	s := newTestSensor(t, src, nil)

	r, err := s.ReadRaw()
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if r.Pos != 400 {
		t.Errorf("Pos: got %d, want 400", r.Pos)
	}
	if s.NativeScale() != 1280 {
		t.Errorf("NativeScale: got %d, want 1280", s.NativeScale())
	}
	if got := s.LastFrame(nil); len(got) != 1280 || got[0] != 200 || got[1279] != 20 {
		t.Error("LastFrame should return the processed pixels")
	}
}

func TestSensorUniformFrameNoReading(t *testing.T) {
	src := imaging.NewFakeSource(1280, shadowFrame(1280, 0, 128, 128, 0))
	s := plunger.NewSensor(newTestSensor(t, src, nil), plunger.Options{JitterWindow: 4})

	for i := 0; i < 3; i++ {
		if _, err := s.Read(); !errors.Is(err, plunger.ErrNoReading) {
			t.Errorf("read %d: got %v, want ErrNoReading", i, err)
		}
	}
}

func TestSensorAutoExposure(t *testing.T) {
	dim := shadowFrame(1280, 600, 100, 10, 0)
	src := imaging.NewFakeSource(1280, dim)
	exp := imaging.NewExposure(100*time.Microsecond, 2500*time.Microsecond)
	s := newTestSensor(t, src, exp)

	if _, err := s.ReadRaw(); err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if got := s.IntegrationExtension(); got != 100*time.Microsecond {
		t.Errorf("extension after dim frame: got %v, want 100us", got)
	}

	src.SetFrames(shadowFrame(1280, 600, 255, 10, 0))
	for i := 0; i < 5; i++ {
		s.ReadRaw()
	}
	if got := s.IntegrationExtension(); got != 0 {
		t.Errorf("extension after saturated frames: got %v, want 0", got)
	}
}
