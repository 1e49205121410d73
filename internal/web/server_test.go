package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/status"
)

func newTestServer(t *testing.T, commands chan<- Command) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:            1,
		HeartbeatMs:       900000,
		PublishIntervalMs: 100,
		Broker:            "tcp://192.168.1.200:1883",
		HTTPAddr:          ":80",
	}
	tr := status.NewTracker(start, "s1", cfg)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plunger_reads_total 1\n")
	})
	srv := New(":0", tr, commands, metrics)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.UpdateUnit(status.UnitStatus{
		Number:     0,
		Type:       "potentiometer",
		State:      logic.StateRest,
		Baselined:  true,
		Counts:     logic.EventCounts{Pullback: 5, Release: 2},
		Reading:    plunger.Reading{Position: 11000},
		HasReading: true,
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if len(sj.Status.Units) != 1 {
		t.Fatalf("units: got %d, want 1", len(sj.Status.Units))
	}
	u := sj.Status.Units[0]
	if u.State != "REST" || u.Counts.Pullback != 5 || u.Counts.Release != 2 {
		t.Errorf("unit: got %+v", u)
	}
	if sj.Status.Config.PublishIntervalMs != 100 {
		t.Errorf("Config.PublishIntervalMs: got %d, want 100", sj.Status.Config.PublishIntervalMs)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.UpdateUnit(status.UnitStatus{
		Number:      1,
		Type:        "image-serial",
		State:       logic.StatePulled,
		Baselined:   true,
		Reading:     plunger.Reading{Position: 32768, Calibrated: 2000},
		HasReading:  true,
		Orientation: plunger.OrientationStandard,
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Unit 1 (image-serial)", "PULLED", "width: 50%", "standard", "/calibration/begin?unit=1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLNoUnits(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "No sensors bound") {
		t.Error("expected empty unit notice")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "plunger_reads_total") {
		t.Errorf("unexpected metrics body: %s", body)
	}
}

func TestCalibrationCommands(t *testing.T) {
	commands := make(chan Command, 2)
	ts, tr := newTestServer(t, commands)
	tr.UpdateUnit(status.UnitStatus{Number: 0})
	tr.UpdateUnit(status.UnitStatus{Number: 2})

	resp, err := http.Post(ts.URL+"/calibration/begin", "", nil)
	if err != nil {
		t.Fatalf("POST begin: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("begin status: got %d, want 202", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/calibration/end?unit=2", "", nil)
	if err != nil {
		t.Fatalf("POST end: %v", err)
	}
	var echoed Command
	json.NewDecoder(resp.Body).Decode(&echoed)
	resp.Body.Close()
	if echoed.Type != CommandCalibrationEnd || echoed.Unit != 2 {
		t.Errorf("response: got %+v", echoed)
	}

	if got := <-commands; got != (Command{Type: CommandCalibrationBegin, Unit: 0}) {
		t.Errorf("first command: got %+v", got)
	}
	if got := <-commands; got != (Command{Type: CommandCalibrationEnd, Unit: 2}) {
		t.Errorf("second command: got %+v", got)
	}
}

func TestCalibrationCommandErrors(t *testing.T) {
	commands := make(chan Command, 1)
	ts, tr := newTestServer(t, commands)
	tr.UpdateUnit(status.UnitStatus{Number: 0})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get not allowed", http.MethodGet, "/calibration/begin", http.StatusMethodNotAllowed},
		{"bad unit", http.MethodPost, "/calibration/begin?unit=x", http.StatusBadRequest},
		{"unknown unit", http.MethodPost, "/calibration/begin?unit=3", http.StatusNotFound},
		{"accepted", http.MethodPost, "/calibration/begin", http.StatusAccepted},
		{"queue full", http.MethodPost, "/calibration/end", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, ts.URL+tt.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}

func TestCalibrationDisabled(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.UpdateUnit(status.UnitStatus{Number: 0})

	resp, err := http.Post(ts.URL+"/calibration/begin", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}
