package logic

import "time"

// Detector tracks plunger state and detects firing events.
type Detector struct {
	cfg           Config
	state         State
	pending       zone
	pendingSince  time.Time
	havePending   bool
	baselined     bool
	peak          int
	peakTime      time.Time
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a new firing detector.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(cfg Config, startTime time.Time) *Detector {
	return &Detector{
		cfg:           cfg,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

func (d *Detector) classify(pos int) zone {
	switch {
	case pos >= d.cfg.PullThreshold:
		return zonePulled
	case pos >= -d.cfg.RestBand && pos <= d.cfg.RestBand:
		return zoneRest
	}
	return zoneMid
}

// held reports whether z has been seen continuously for the debounce period.
func (d *Detector) held(z zone, now time.Time) bool {
	if !d.havePending || d.pending != z {
		d.pending = z
		d.pendingSince = now
		d.havePending = true
	}
	return now.Sub(d.pendingSince) >= d.cfg.Debounce
}

// Process takes a new reading and returns any events that should be emitted.
// Events are only returned after a baseline is established.
func (d *Detector) Process(input Input) []Event {
	z := d.classify(input.Position)

	if !d.baselined {
		if z == zoneMid || !d.held(z, input.Time) {
			if z == zoneMid {
				d.havePending = false
			}
			return nil
		}
		d.baselined = true
		d.havePending = false
		if z == zonePulled {
			d.state = StatePulled
			d.peak, d.peakTime = input.Position, input.Time
		} else {
			d.state = StateRest
		}
		return nil
	}

	var events []Event
	switch d.state {
	case StateRest:
		if z != zonePulled {
			d.havePending = false
			break
		}
		if d.held(z, input.Time) {
			d.havePending = false
			d.state = StatePulled
			d.peak, d.peakTime = input.Position, input.Time
			events = append(events, d.event(EventPullback, input))
		}

	case StatePulled:
		d.trackPeak(input)
		if z != zoneRest && input.Position >= -d.cfg.RestBand {
			d.havePending = false
			break
		}
		// Reached rest, or overshot it on the way forward.
		if travel := input.Time.Sub(d.peakTime); travel <= d.cfg.MaxRelease {
			e := d.event(EventRelease, input)
			d.state = StateReleasing
			e.State = d.state
			e.Duration = travel
			d.havePending = false
			events = append(events, e)
			break
		}
		if z == zoneRest && d.held(z, input.Time) {
			events = append(events, d.settle(input))
		}

	case StateReleasing:
		if z != zoneRest {
			d.havePending = false
			break
		}
		if d.held(z, input.Time) {
			events = append(events, d.settle(input))
		}
	}

	for _, e := range events {
		switch e.Type {
		case EventPullback:
			d.eventCounts.Pullback++
		case EventRelease:
			d.eventCounts.Release++
		case EventRest:
			d.eventCounts.Rest++
		}
	}
	return events
}

// trackPeak follows the furthest pull. The peak time is the last moment the
// plunger was still near the peak, so the release duration covers the forward travel only.
func (d *Detector) trackPeak(input Input) {
	if input.Position > d.peak {
		d.peak = input.Position
	}
	if input.Position >= d.peak-d.cfg.RestBand {
		d.peakTime = input.Time
	}
}

func (d *Detector) settle(input Input) Event {
	d.havePending = false
	d.state = StateRest
	d.peak = 0
	return d.event(EventRest, input)
}

func (d *Detector) event(t EventType, input Input) Event {
	return Event{
		Timestamp: input.Time,
		Type:      t,
		State:     d.state,
		Position:  input.Position,
		Peak:      d.peak,
	}
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the current debounced state.
func (d *Detector) CurrentState() State {
	return d.state
}

// EventCountsSnapshot returns the event counts since startup.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
