// Package status provides a thread-safe status tracker for the plunger-sensor daemon.
// It is read by HTTP handlers and heartbeat publishing.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs            int64
	HeartbeatMs       int64
	PublishIntervalMs int64
	Broker            string
	HTTPAddr          string
	WSBroker          string // Websocket broker URL for browser MQTT (empty = disabled)
}

// UnitStatus is the last known state of one bound sensor.
type UnitStatus struct {
	Number      int
	Type        string
	State       logic.State
	Baselined   bool
	Counts      logic.EventCounts
	Reading     plunger.Reading
	HasReading  bool
	NoReadings  uint64 // reads that produced no position
	Orientation plunger.Orientation
	ScanTime    time.Duration
	Calibration plunger.Calibration
	Calibrating bool
	Integration time.Duration
	// InvalidTransitions is only meaningful for quadrature sensors.
	InvalidTransitions uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session       string
	Units         []UnitStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every unit has established a baseline.
func (s Snapshot) Ready() bool {
	if len(s.Units) == 0 {
		return false
	}
	for _, u := range s.Units {
		if !u.Baselined {
			return false
		}
	}
	return true
}

// Unit returns the status of unit n.
func (s Snapshot) Unit(n int) (UnitStatus, bool) {
	for _, u := range s.Units {
		if u.Number == n {
			return u, true
		}
	}
	return UnitStatus{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, session id and config.
func NewTracker(startTime time.Time, session string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   session,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateUnit replaces the status of u.Number. Called from runLoop on every tick.
func (t *Tracker) UpdateUnit(u UnitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Units {
		if t.snap.Units[i].Number == u.Number {
			t.snap.Units[i] = u
			return
		}
	}
	t.snap.Units = append(t.snap.Units, u)
	sort.Slice(t.snap.Units, func(i, j int) bool { return t.snap.Units[i].Number < t.snap.Units[j].Number })
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Units = append([]UnitStatus(nil), t.snap.Units...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
