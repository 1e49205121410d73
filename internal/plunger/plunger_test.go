package plunger

import (
	"errors"
	"testing"
	"time"
)

func TestJitterFilterFirstSample(t *testing.T) {
	f := NewJitterFilter(10)
	if got := f.Apply(500); got != 500 {
		t.Errorf("first output: got %d, want 500", got)
	}
	low, high, last, ok := f.Bounds()
	if !ok {
		t.Fatal("filter should be primed after first sample")
	}
	if high-low != 10 {
		t.Errorf("window width: got %d, want 10", high-low)
	}
	if low > last || last > high {
		t.Errorf("last output %d outside window [%d, %d]", last, low, high)
	}
}

func TestJitterFilterConstantInsideWindow(t *testing.T) {
	f := NewJitterFilter(10)
	first := f.Apply(1000)
	for _, v := range []int{995, 1005, 1000, 997, 1003, 995, 1005} {
		if got := f.Apply(v); got != first {
			t.Errorf("input %d: got %d, want constant %d", v, got, first)
		}
	}
}

func TestJitterFilterShiftUpAtBoundary(t *testing.T) {
	f := NewJitterFilter(10)
	f.Apply(1000)
	_, high, last, _ := f.Bounds()

	got := f.Apply(high + 1)
	newLow, newHigh, _, _ := f.Bounds()
	if newHigh != high+1 {
		t.Errorf("new high: got %d, want %d", newHigh, high+1)
	}
	if newHigh-newLow != 10 {
		t.Errorf("window width: got %d, want 10", newHigh-newLow)
	}
	if want := (newHigh + newLow) / 2; got != want {
		t.Errorf("output: got %d, want midpoint %d", got, want)
	}
	if got == last {
		t.Error("output should not repeat the settled value")
	}
}

func TestJitterFilterShiftDown(t *testing.T) {
	f := NewJitterFilter(10)
	f.Apply(1000)
	got := f.Apply(900)
	low, high, _, _ := f.Bounds()
	if low != 900 || high != 910 {
		t.Errorf("window: got [%d, %d], want [900, 910]", low, high)
	}
	if got != 905 {
		t.Errorf("output: got %d, want 905", got)
	}
}

func TestJitterFilterDisabled(t *testing.T) {
	f := NewJitterFilter(0)
	for _, v := range []int{5, 6, 5, 100, 99} {
		if got := f.Apply(v); got != v {
			t.Errorf("pass-through: got %d, want %d", got, v)
		}
	}
}

func TestScalerEndpoints(t *testing.T) {
	for _, scale := range []int{128, 1280, 1536, 4096, 65535} {
		s := NewScaler(scale)
		if got := s.Normalize(0); got != 0 {
			t.Errorf("scale %d: Normalize(0) = %d, want 0", scale, got)
		}
		got := s.Normalize(scale - 1)
		tolerance := MaxPosition/scale + 1
		if got < MaxPosition-tolerance || got > MaxPosition {
			t.Errorf("scale %d: Normalize(%d) = %d, want within %d of %d", scale, scale-1, got, tolerance, MaxPosition)
		}
	}
}

func TestScalerClamps(t *testing.T) {
	s := NewScaler(1000)
	if got := s.Normalize(-50); got != 0 {
		t.Errorf("negative: got %d, want 0", got)
	}
	if got := s.Normalize(5000); got != MaxPosition {
		t.Errorf("overrun: got %d, want %d", got, MaxPosition)
	}
}

func TestScalerOrient(t *testing.T) {
	s := NewScaler(1280)
	if got := s.Orient(100, false); got != 100 {
		t.Errorf("standard: got %d, want 100", got)
	}
	if got := s.Orient(100, true); got != 1180 {
		t.Errorf("reversed: got %d, want 1180", got)
	}
}

func TestCalibrationApply(t *testing.T) {
	c := Calibration{Min: 0, Zero: 200, Max: 1200}
	tests := []struct {
		raw  int
		want int
	}{
		{200, 0},
		{1200, JoystickMax},
		{700, JoystickMax / 2},
		{0, -JoystickMax * 200 / 1000},
		{5000, JoystickMax},
	}
	for _, tt := range tests {
		if got := c.Apply(tt.raw); got != tt.want {
			t.Errorf("Apply(%d): got %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCalibratorLearnsBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCalibrator(1000, DefaultCalibration(1000))
	c.Begin()
	if !c.Learning() {
		t.Fatal("expected learning after Begin")
	}

	// Hold still at rest for a while.
	tick := 0
	feed := func(pos int) {
		c.Observe(RawReading{Pos: pos, Time: now.Add(time.Duration(tick) * 2 * time.Millisecond)})
		tick++
	}
	for i := 0; i < 200; i++ {
		feed(150 + i%3)
	}
	// Pull back slowly.
	for p := 150; p <= 900; p += 5 {
		feed(p)
	}
	// Push forward past rest.
	feed(120)
	feed(150)

	cal := c.End()
	if c.Learning() {
		t.Error("expected learning to stop after End")
	}
	if cal.Min != 120 {
		t.Errorf("Min: got %d, want 120", cal.Min)
	}
	if cal.Max != 900 {
		t.Errorf("Max: got %d, want 900", cal.Max)
	}
	if cal.Zero < 150 || cal.Zero > 152 {
		t.Errorf("Zero: got %d, want rest average in [150, 152]", cal.Zero)
	}
}

func TestCalibratorMeasuresRelease(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCalibrator(1000, DefaultCalibration(1000))
	c.Begin()

	at := now
	feed := func(pos int, step time.Duration) {
		at = at.Add(step)
		c.Observe(RawReading{Pos: pos, Time: at})
	}
	for i := 0; i < 150; i++ {
		feed(100, 2*time.Millisecond)
	}
	for p := 100; p <= 900; p += 50 {
		feed(p, 20*time.Millisecond)
	}
	// Release: 900 -> 100 in 40ms.
	for p := 800; p >= 100; p -= 100 {
		feed(p, 5*time.Millisecond)
	}

	cal := c.End()
	if cal.ReleaseTime != 40*time.Millisecond {
		t.Errorf("ReleaseTime: got %v, want 40ms", cal.ReleaseTime)
	}
}

func TestCalibratorRestoresOnEmptyLearning(t *testing.T) {
	prev := Calibration{Min: 10, Zero: 100, Max: 900, ReleaseTime: 50 * time.Millisecond}
	c := NewCalibrator(1000, prev)
	c.Begin()
	c.Observe(RawReading{Pos: 100, Time: time.Now()})
	if got := c.End(); got != prev {
		t.Errorf("expected previous calibration restored, got %+v", got)
	}
}

func TestCalibratorRepeatedBegin(t *testing.T) {
	prev := Calibration{Min: 10, Zero: 100, Max: 900, ReleaseTime: 50 * time.Millisecond}
	c := NewCalibrator(1000, prev)
	c.Begin()
	c.Observe(RawReading{Pos: 200, Time: time.Now()})
	c.Begin()
	if got := c.Calibration(); got.Min != 200 || got.Max != 200 {
		t.Errorf("second Begin should keep learned bounds, got %+v", got)
	}
	got := c.End()
	if got != prev {
		t.Errorf("expected previous calibration restored, got %+v", got)
	}
	if !got.Valid() {
		t.Error("restored calibration should be valid")
	}
}

func TestCalibratorObserveIgnoredOutsideLearning(t *testing.T) {
	c := NewCalibrator(1000, DefaultCalibration(1000))
	before := c.Calibration()
	c.Observe(RawReading{Pos: 5000})
	if c.Calibration() != before {
		t.Error("Observe should not change calibration outside learning")
	}
}

// fakeRaw is a scripted RawSensor.
type fakeRaw struct {
	scale   int
	pos     []int
	err     error
	i       int
	zeroed  int
	now     time.Time
	step    time.Duration
	closed  bool
	inited  bool
	initErr error
}

func (f *fakeRaw) Init() error {
	f.inited = true
	return f.initErr
}

func (f *fakeRaw) ReadRaw() (RawReading, error) {
	if f.err != nil {
		return RawReading{}, f.err
	}
	p := f.pos[f.i]
	if f.i < len(f.pos)-1 {
		f.i++
	}
	f.now = f.now.Add(f.step)
	return RawReading{Pos: p, Time: f.now}, nil
}

func (f *fakeRaw) NativeScale() int                { return f.scale }
func (f *fakeRaw) AverageScanTime() time.Duration { return time.Millisecond }
func (f *fakeRaw) Close() error                   { f.closed = true; return nil }
func (f *fakeRaw) AutoZero()                      { f.zeroed++ }

func TestSensorPipelineOrder(t *testing.T) {
	raw := &fakeRaw{scale: 1000, pos: []int{250}, step: time.Millisecond}
	s := NewSensor(raw, Options{Reversed: true})
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !raw.inited {
		t.Error("expected raw sensor Init to be called")
	}

	r, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Raw != 750 {
		t.Errorf("Raw: got %d, want 750 (reversed)", r.Raw)
	}
	if want := NewScaler(1000).Normalize(750); r.Position != want {
		t.Errorf("Position: got %d, want %d", r.Position, want)
	}
}

func TestSensorPropagatesNoReading(t *testing.T) {
	raw := &fakeRaw{scale: 1000, err: ErrOrientationUnknown}
	s := NewSensor(raw, Options{})
	_, err := s.Read()
	if !errors.Is(err, ErrNoReading) {
		t.Errorf("expected ErrNoReading, got %v", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	for _, err := range []error{ErrOrientationUnknown, ErrDecodeInconsistent} {
		if !errors.Is(err, ErrNoReading) {
			t.Errorf("%v should wrap ErrNoReading", err)
		}
	}
}

func TestSensorAutoZero(t *testing.T) {
	raw := &fakeRaw{scale: 1000, pos: []int{300}, step: 10 * time.Millisecond}
	s := NewSensor(raw, Options{AutoZero: true, AutoZeroTime: 100 * time.Millisecond})

	for i := 0; i < 10; i++ {
		s.Read()
	}
	if raw.zeroed != 0 {
		t.Fatalf("auto-zero fired too early (%d)", raw.zeroed)
	}
	for i := 0; i < 10; i++ {
		s.Read()
	}
	if raw.zeroed != 1 {
		t.Errorf("auto-zero count: got %d, want 1", raw.zeroed)
	}
}

func TestSensorAutoZeroDisabledWhileCalibrating(t *testing.T) {
	raw := &fakeRaw{scale: 1000, pos: []int{300}, step: 10 * time.Millisecond}
	s := NewSensor(raw, Options{AutoZero: true, AutoZeroTime: 20 * time.Millisecond})
	s.BeginCalibration()
	for i := 0; i < 20; i++ {
		s.Read()
	}
	if raw.zeroed != 0 {
		t.Errorf("auto-zero should not fire during calibration, fired %d times", raw.zeroed)
	}
}

func TestSensorCalibrationRoundTrip(t *testing.T) {
	raw := &fakeRaw{scale: 1000, pos: []int{100, 100, 800, 100}, step: time.Millisecond}
	s := NewSensor(raw, Options{})
	s.BeginCalibration()
	if !s.Calibrating() {
		t.Fatal("expected Calibrating")
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Read(); err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	cal := s.EndCalibration()
	if cal.Zero != 100 || cal.Max != 800 {
		t.Errorf("calibration: got %+v, want Zero=100 Max=800", cal)
	}
	if s.Calibration() != cal {
		t.Error("Calibration should return the frozen record")
	}
}

func TestScanTimer(t *testing.T) {
	var st ScanTimer
	if st.Average() != 0 {
		t.Error("empty timer should average 0")
	}
	st.Add(2 * time.Millisecond)
	st.Add(4 * time.Millisecond)
	if got := st.Average(); got != 3*time.Millisecond {
		t.Errorf("Average: got %v, want 3ms", got)
	}
}
