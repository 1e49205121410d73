package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Session       string       `json:"session"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Units         []UnitJSON   `json:"units"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// UnitJSON is the JSON representation of one unit.
type UnitJSON struct {
	Unit               int             `json:"unit"`
	Type               string          `json:"type"`
	State              string          `json:"state"`
	Ready              bool            `json:"ready"`
	Position           *int            `json:"position,omitempty"`
	Raw                *int            `json:"raw,omitempty"`
	Calibrated         *int            `json:"calibrated,omitempty"`
	NoReadings         uint64          `json:"no_readings"`
	Orientation        string          `json:"orientation"`
	ScanTimeUs         int64           `json:"scan_time_us"`
	IntegrationUs      int64           `json:"integration_us,omitempty"`
	InvalidTransitions uint64          `json:"invalid_transitions,omitempty"`
	Calibrating        bool            `json:"calibrating"`
	Calibration        CalibrationJSON `json:"calibration"`
	Counts             CountsJSON      `json:"event_counts"`
}

// CalibrationJSON is the JSON representation of calibration bounds.
type CalibrationJSON struct {
	Min           int   `json:"min"`
	Zero          int   `json:"zero"`
	Max           int   `json:"max"`
	ReleaseTimeMs int64 `json:"release_ms"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Pullback int `json:"pullback"`
	Release  int `json:"release"`
	Rest     int `json:"rest"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs            int64  `json:"poll_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	PublishIntervalMs int64  `json:"publish_interval_ms"`
	Broker            string `json:"broker"`
	HTTPAddr          string `json:"http_addr"`
	WSBroker          string `json:"ws_broker,omitempty"`
}

// StateOrUnknown returns the state text, UNKNOWN before a baseline.
func StateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildUnit(u UnitStatus) UnitJSON {
	j := UnitJSON{
		Unit:               u.Number,
		Type:               u.Type,
		State:              StateOrUnknown(string(u.State)),
		Ready:              u.Baselined,
		NoReadings:         u.NoReadings,
		Orientation:        u.Orientation.String(),
		ScanTimeUs:         u.ScanTime.Microseconds(),
		IntegrationUs:      u.Integration.Microseconds(),
		InvalidTransitions: u.InvalidTransitions,
		Calibrating:        u.Calibrating,
		Calibration: CalibrationJSON{
			Min:           u.Calibration.Min,
			Zero:          u.Calibration.Zero,
			Max:           u.Calibration.Max,
			ReleaseTimeMs: u.Calibration.ReleaseTime.Milliseconds(),
		},
		Counts: CountsJSON{
			Pullback: u.Counts.Pullback,
			Release:  u.Counts.Release,
			Rest:     u.Counts.Rest,
		},
	}
	if u.HasReading {
		r := u.Reading
		j.Position, j.Raw, j.Calibrated = &r.Position, &r.Raw, &r.Calibrated
	}
	return j
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Session:       snap.Session,
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Units:         make([]UnitJSON, 0, len(snap.Units)),
		Config: ConfigJSON{
			PollMs:            snap.Config.PollMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			PublishIntervalMs: snap.Config.PublishIntervalMs,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
			WSBroker:          snap.Config.WSBroker,
		},
	}
	for _, u := range snap.Units {
		inner.Units = append(inner.Units, buildUnit(u))
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
