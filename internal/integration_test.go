package internal

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/plunger-sensor/internal/analog"
	"github.com/sweeney/plunger-sensor/internal/barcode"
	"github.com/sweeney/plunger-sensor/internal/edge"
	"github.com/sweeney/plunger-sensor/internal/imaging"
	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/mqtt"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/status"
	"github.com/sweeney/plunger-sensor/internal/store"
)

const pollInterval = 10 * time.Millisecond

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// pullScript is rest, a long pull, then a snap back to rest.
func pullScript(rest, pulled int) []int {
	var out []int
	for i := 0; i < 15; i++ {
		out = append(out, rest)
	}
	for i := 0; i < 15; i++ {
		out = append(out, pulled)
	}
	for i := 0; i < 15; i++ {
		out = append(out, rest)
	}
	return out
}

// shadowFrame is lit up to edge and shadowed from edge on.
func shadowFrame(n, edge int) []byte {
	pix := make([]byte, n)
	for i := range pix {
		if i < edge {
			pix[i] = 220
		} else {
			pix[i] = 20
		}
	}
	return pix
}

func barCodeFrame(bin int) []byte {
	pix := make([]byte, 128)
	barcode.Render(pix, barcode.DefaultGeometry(), 12, bin, 210, 20)
	return pix
}

func startCapture(t *testing.T, src *imaging.FakeSource) *imaging.Capture {
	t.Helper()
	return imaging.NewCapture(src, imaging.CaptureConfig{MaxTransfer: time.Second, MaxIntegration: 2500 * time.Microsecond}, nil)
}

func newPipeline(t *testing.T, raw plunger.RawSensor) *plunger.Sensor {
	t.Helper()
	s := plunger.NewSensor(raw, plunger.Options{Calibration: plunger.DefaultCalibration(raw.NativeScale())})
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// drive runs n polls of the daemon's per-unit pipeline: read, detect, publish.
func drive(t *testing.T, s *plunger.Sensor, n int) (*logic.Detector, *mqtt.FakePublisher) {
	t.Helper()
	detector := logic.NewDetector(logic.DefaultConfig(), startTime)
	publisher := mqtt.NewFakePublisher()
	publisher.Session = "integration"

	for i := 0; i < n; i++ {
		r, err := s.Read()
		if err != nil {
			t.Fatalf("poll %d: read error: %v", i, err)
		}
		now := startTime.Add(time.Duration(i) * pollInterval)
		for _, event := range detector.Process(logic.Input{Position: r.Calibrated, Time: now}) {
			if err := publisher.Publish(0, event); err != nil {
				t.Fatalf("poll %d: publish error: %v", i, err)
			}
		}
	}
	return detector, publisher
}

func checkFiringSequence(t *testing.T, publisher *mqtt.FakePublisher) {
	t.Helper()
	want := []struct {
		typ   logic.EventType
		state logic.State
	}{
		{logic.EventPullback, logic.StatePulled},
		{logic.EventRelease, logic.StateReleasing},
		{logic.EventRest, logic.StateRest},
	}
	if len(publisher.Events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(publisher.Events), publisher.Events)
	}
	for i, w := range want {
		e := publisher.Events[i].Event
		if e.Type != w.typ || e.State != w.state {
			t.Errorf("event %d: got %s/%s, want %s/%s", i, e.Type, e.State, w.typ, w.state)
		}
	}
	if d := publisher.Events[1].Event.Duration; d != pollInterval {
		t.Errorf("release duration: got %v, want %v", d, pollInterval)
	}
}

func TestIntegrationEdgeSensorFiring(t *testing.T) {
	// Default calibration for 1280 pixels puts rest at pixel 213.
	script := pullScript(213, 1100)
	frames := make([][]byte, len(script))
	for i, p := range script {
		frames[i] = shadowFrame(1280, p)
	}
	src := imaging.NewFakeSource(1280, frames...)
	s := newPipeline(t, edge.NewSensor(startCapture(t, src), edge.NewDetector(edge.DefaultConfig()), nil))

	_, publisher := drive(t, s, len(script))
	checkFiringSequence(t, publisher)

	if o := s.Orientation(); o != plunger.OrientationStandard {
		t.Errorf("orientation: got %v, want standard", o)
	}
	if peak := publisher.Events[1].Event.Peak; peak != plunger.DefaultCalibration(1280).Apply(1100) {
		t.Errorf("release peak: got %d", peak)
	}
}

func TestIntegrationBarCodeFiring(t *testing.T) {
	// 100 printed bins: rest at bin 16.
	script := pullScript(16, 90)
	frames := make([][]byte, len(script))
	for i, b := range script {
		frames[i] = barCodeFrame(b)
	}
	dec, err := barcode.NewDecoder(barcode.DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	src := imaging.NewFakeSource(128, frames...)
	s := newPipeline(t, barcode.NewSensor(startCapture(t, src), dec, nil))

	_, publisher := drive(t, s, len(script))
	checkFiringSequence(t, publisher)
}

func TestIntegrationPotentiometerFiring(t *testing.T) {
	// 12-bit counts: 683 sits at one sixth of travel.
	script := pullScript(683, 3800)
	values := []int{683} // read by Init
	for _, v := range script {
		values = append(values, v, v, v, v)
	}
	s := newPipeline(t, analog.NewSampler(analog.NewFakeADC(12, values...), 4))

	_, publisher := drive(t, s, len(script))
	checkFiringSequence(t, publisher)
}

func TestIntegrationNoEventsAtStartup(t *testing.T) {
	frames := make([][]byte, 20)
	for i := range frames {
		frames[i] = shadowFrame(1280, 1100) // pulled from the start
	}
	s := newPipeline(t, edge.NewSensor(startCapture(t, imaging.NewFakeSource(1280, frames...)), edge.NewDetector(edge.DefaultConfig()), nil))

	detector, publisher := drive(t, s, len(frames))
	if len(publisher.Events) != 0 {
		t.Errorf("expected no events while establishing a baseline, got %d", len(publisher.Events))
	}
	if !detector.IsBaselined() || detector.CurrentState() != logic.StatePulled {
		t.Errorf("baseline: got baselined=%v state=%s, want PULLED", detector.IsBaselined(), detector.CurrentState())
	}
}

func TestIntegrationUniformFramesNoReading(t *testing.T) {
	flat := make([]byte, 1280)
	for i := range flat {
		flat[i] = 128
	}
	s := newPipeline(t, edge.NewSensor(startCapture(t, imaging.NewFakeSource(1280, flat)), edge.NewDetector(edge.DefaultConfig()), nil))

	for i := 0; i < 3; i++ {
		if _, err := s.Read(); !errors.Is(err, plunger.ErrNoReading) {
			t.Errorf("read %d: got %v, want ErrNoReading", i, err)
		}
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	script := pullScript(213, 1100)
	frames := make([][]byte, len(script))
	for i, p := range script {
		frames[i] = shadowFrame(1280, p)
	}
	s := newPipeline(t, edge.NewSensor(startCapture(t, imaging.NewFakeSource(1280, frames...)), edge.NewDetector(edge.DefaultConfig()), nil))
	_, publisher := drive(t, s, len(script))

	if len(publisher.Payloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(publisher.Payloads))
	}
	var parsed struct {
		Plunger map[string]interface{} `json:"plunger"`
	}
	if err := json.Unmarshal(publisher.Payloads[1], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	p := parsed.Plunger
	if p["event"] != "RELEASE" || p["state"] != "RELEASING" {
		t.Errorf("unexpected payload: %s", publisher.Payloads[1])
	}
	if p["session"] != "integration" {
		t.Errorf("session: got %v", p["session"])
	}
	if p["duration_ms"] != float64(10) {
		t.Errorf("duration_ms: got %v, want 10", p["duration_ms"])
	}
	if _, ok := p["timestamp"].(string); !ok {
		t.Error("timestamp should be a string")
	}
}

func TestIntegrationCalibrationRoundTrip(t *testing.T) {
	var frames [][]byte
	for i := 0; i < 10; i++ {
		frames = append(frames, shadowFrame(1280, 200))
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, shadowFrame(1280, 1200))
	}
	src := imaging.NewFakeSource(1280, frames...)
	s := newPipeline(t, edge.NewSensor(startCapture(t, src), edge.NewDetector(edge.DefaultConfig()), nil))

	s.BeginCalibration()
	for i := range frames {
		if _, err := s.Read(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	cal := s.EndCalibration()
	if cal.Min != 200 || cal.Zero != 200 || cal.Max != 1200 {
		t.Fatalf("learned calibration: got %+v", cal)
	}

	ctx := context.Background()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "calibration.yaml"))
	if err := st.Save(ctx, 0, cal); err != nil {
		t.Fatalf("Save: %v", err)
	}
	publisher := mqtt.NewFakePublisher()
	if err := publisher.PublishCalibration(0, cal, startTime); err != nil {
		t.Fatalf("PublishCalibration: %v", err)
	}

	loaded, ok, err := st.Load(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if loaded != cal {
		t.Errorf("loaded calibration: got %+v, want %+v", loaded, cal)
	}

	// A fresh unit picks up the stored record: full retraction reads as joystick max.
	fresh := newPipeline(t, edge.NewSensor(startCapture(t, imaging.NewFakeSource(1280, shadowFrame(1280, 1200))), edge.NewDetector(edge.DefaultConfig()), nil))
	if !fresh.SetCalibration(loaded) {
		t.Fatal("stored calibration rejected")
	}
	r, err := fresh.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Calibrated != plunger.JoystickMax {
		t.Errorf("calibrated: got %d, want %d", r.Calibrated, plunger.JoystickMax)
	}
}

func TestIntegrationStatusAfterFiring(t *testing.T) {
	script := pullScript(213, 1100)
	frames := make([][]byte, len(script))
	for i, p := range script {
		frames[i] = shadowFrame(1280, p)
	}
	s := newPipeline(t, edge.NewSensor(startCapture(t, imaging.NewFakeSource(1280, frames...)), edge.NewDetector(edge.DefaultConfig()), nil))
	detector, _ := drive(t, s, len(script))

	tracker := status.NewTracker(startTime, "integration", status.Config{PollMs: 10})
	tracker.UpdateUnit(status.UnitStatus{
		Number:      0,
		Type:        "image-serial",
		State:       detector.CurrentState(),
		Baselined:   detector.IsBaselined(),
		Counts:      detector.EventCountsSnapshot(),
		Orientation: s.Orientation(),
		Calibration: s.Calibration(),
	})

	var parsed status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(tracker.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !parsed.Status.Ready {
		t.Error("expected ready once every unit has a baseline")
	}
	if len(parsed.Status.Units) != 1 {
		t.Fatalf("units: got %d, want 1", len(parsed.Status.Units))
	}
	u := parsed.Status.Units[0]
	if u.State != "REST" || u.Orientation != "standard" {
		t.Errorf("unit: got state=%s orientation=%s", u.State, u.Orientation)
	}
	if u.Counts != (status.CountsJSON{Pullback: 1, Release: 1, Rest: 1}) {
		t.Errorf("counts: got %+v", u.Counts)
	}
	if u.Position != nil {
		t.Error("position should be omitted without a reading")
	}
}
