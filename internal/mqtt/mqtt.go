// Package mqtt publishes plunger readings, firing events and daemon lifecycle
// events, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Topics.
const (
	TopicEvents      = "pinball/plunger/events"
	TopicReadings    = "pinball/plunger/readings"
	TopicCalibration = "pinball/plunger/calibration"
	TopicSystem      = "pinball/plunger/system"
)

// Publisher publishes plunger telemetry.
type Publisher interface {
	// Publish sends a firing event for a unit.
	// Returns error if publishing fails (should not crash the process).
	Publish(unit int, event logic.Event) error

	// PublishReading sends a position sample. Readings are best effort and
	// are dropped rather than buffered while disconnected.
	PublishReading(unit int, r plunger.Reading) error

	// PublishCalibration sends the result of a calibration run.
	PublishCalibration(unit int, cal plunger.Calibration, at time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// EventPayload is the MQTT message for a firing event.
type EventPayload struct {
	Plunger EventInner `json:"plunger"`
}

// EventInner contains the firing event details.
type EventInner struct {
	Unit       int    `json:"unit"`
	Session    string `json:"session,omitempty"`
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	State      string `json:"state"`
	Position   int    `json:"position"`
	Peak       int    `json:"peak"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// FormatPayload creates the JSON payload for a firing event.
func FormatPayload(unit int, event logic.Event, session string) ([]byte, error) {
	return json.Marshal(EventPayload{
		Plunger: EventInner{
			Unit:       unit,
			Session:    session,
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:      string(event.Type),
			State:      string(event.State),
			Position:   event.Position,
			Peak:       event.Peak,
			DurationMs: event.Duration.Milliseconds(),
		},
	})
}

// ReadingPayload is the MQTT message for a position sample.
type ReadingPayload struct {
	Reading ReadingInner `json:"reading"`
}

// ReadingInner contains one sample.
type ReadingInner struct {
	Unit       int    `json:"unit"`
	Timestamp  string `json:"timestamp"`
	Position   int    `json:"position"`
	Raw        int    `json:"raw"`
	Calibrated int    `json:"calibrated"`
}

// FormatReading creates the JSON payload for a position sample.
func FormatReading(unit int, r plunger.Reading) ([]byte, error) {
	return json.Marshal(ReadingPayload{
		Reading: ReadingInner{
			Unit:       unit,
			Timestamp:  r.Time.UTC().Format(time.RFC3339Nano),
			Position:   r.Position,
			Raw:        r.Raw,
			Calibrated: r.Calibrated,
		},
	})
}

// CalibrationPayload is the MQTT message for a finished calibration.
type CalibrationPayload struct {
	Calibration CalibrationInner `json:"calibration"`
}

// CalibrationInner contains the calibrated bounds in native units.
type CalibrationInner struct {
	Unit          int    `json:"unit"`
	Session       string `json:"session,omitempty"`
	Timestamp     string `json:"timestamp"`
	Min           int    `json:"min"`
	Zero          int    `json:"zero"`
	Max           int    `json:"max"`
	ReleaseTimeMs int64  `json:"release_ms"`
}

// FormatCalibration creates the JSON payload for a calibration result.
func FormatCalibration(unit int, cal plunger.Calibration, at time.Time, session string) ([]byte, error) {
	return json.Marshal(CalibrationPayload{
		Calibration: CalibrationInner{
			Unit:          unit,
			Session:       session,
			Timestamp:     at.UTC().Format(time.RFC3339),
			Min:           cal.Min,
			Zero:          cal.Zero,
			Max:           cal.Max,
			ReleaseTimeMs: cal.ReleaseTime.Milliseconds(),
		},
	})
}

// CalibrationTopic is the retained per-unit calibration topic.
func CalibrationTopic(unit int) string {
	return TopicCalibration + "/" + strconv.Itoa(unit)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Session   string `json:"session,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent, session string) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Session:   session,
		},
	})
}

// Throttle limits per-unit reading publication to one per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int]time.Time
}

// NewThrottle creates a Throttle. A zero interval allows every reading.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, last: make(map[int]time.Time)}
}

// Allow reports whether a reading for unit at now may be published, and
// records it if so.
func (t *Throttle) Allow(unit int, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[unit]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[unit] = now
	return true
}
