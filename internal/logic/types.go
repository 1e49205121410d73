// Package logic contains pure plunger firing detection.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the debounced state of the plunger.
type State string

const (
	StateUnknown   State = ""
	StateRest      State = "REST"
	StatePulled    State = "PULLED"
	StateReleasing State = "RELEASING"
)

// EventType represents a firing event.
type EventType string

const (
	EventPullback EventType = "PULLBACK"
	EventRelease  EventType = "RELEASE"
	EventRest     EventType = "REST"
)

// Event represents a firing event to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	// Position is the calibrated position when the event fired.
	Position int
	// Peak is the furthest calibrated pull (PULLBACK, RELEASE).
	Peak int
	// Duration is the release travel time from the peak to rest (RELEASE).
	Duration time.Duration
}

// Config tunes firing detection. Positions are calibrated joystick units:
// 0 at rest, 4096 at full retraction.
type Config struct {
	// PullThreshold is the position beyond which the plunger counts as pulled.
	PullThreshold int
	// RestBand is the half-width of the band around zero that counts as rest.
	RestBand int
	// Debounce is how long a zone must hold before the state changes.
	Debounce time.Duration
	// MaxRelease is the longest travel from peak to rest that counts as a release.
	MaxRelease time.Duration
}

// DefaultConfig returns thresholds suited to a typical cabinet plunger.
func DefaultConfig() Config {
	return Config{
		PullThreshold: 1024,
		RestBand:      256,
		Debounce:      100 * time.Millisecond,
		MaxRelease:    200 * time.Millisecond,
	}
}

// Input represents a single calibrated reading.
type Input struct {
	Position int
	Time     time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Pullback int
	Release  int
	Rest     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// zone classifies one reading.
type zone int

const (
	zoneMid zone = iota
	zoneRest
	zonePulled
)
