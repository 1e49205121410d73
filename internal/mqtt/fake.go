package mqtt

import (
	"time"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// UnitEvent is a firing event recorded by FakePublisher.
type UnitEvent struct {
	Unit  int
	Event logic.Event
}

// UnitReading is a reading recorded by FakePublisher.
type UnitReading struct {
	Unit    int
	Reading plunger.Reading
}

// UnitCalibration is a calibration recorded by FakePublisher.
type UnitCalibration struct {
	Unit        int
	Calibration plunger.Calibration
	Time        time.Time
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Session is included in formatted payloads.
	Session string

	// Events contains all firing events that were published.
	Events []UnitEvent

	// Payloads contains the JSON payloads of published events.
	Payloads [][]byte

	Readings     []UnitReading
	Calibrations []UnitCalibration

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish and PublishReading.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the firing event.
func (f *FakePublisher) Publish(unit int, event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(unit, event, f.Session)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, UnitEvent{Unit: unit, Event: event})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishReading records the reading.
func (f *FakePublisher) PublishReading(unit int, r plunger.Reading) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Readings = append(f.Readings, UnitReading{Unit: unit, Reading: r})
	return nil
}

// PublishCalibration records the calibration.
func (f *FakePublisher) PublishCalibration(unit int, cal plunger.Calibration, at time.Time) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	f.Calibrations = append(f.Calibrations, UnitCalibration{Unit: unit, Calibration: cal, Time: at})
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event, f.Session)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Events = nil
	f.Payloads = nil
	f.Readings = nil
	f.Calibrations = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
