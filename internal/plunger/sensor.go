package plunger

import (
	"fmt"
	"time"
)

// Options configures the shared reading pipeline.
type Options struct {
	JitterWindow int
	Reversed     bool
	Calibration  Calibration

	// AutoZero enables re-referencing relative sensors after AutoZeroTime at rest.
	AutoZero     bool
	AutoZeroTime time.Duration
}

// Sensor binds one RawSensor to the shared pipeline: orientation flip, jitter
// filter and scaling. It is owned by the polling loop and not safe for concurrent use.
type Sensor struct {
	raw        RawSensor
	scaler     Scaler
	jitter     *JitterFilter
	reversed   bool
	calibrator *Calibrator

	autoZero     bool
	autoZeroTime time.Duration
	stillPos     int
	stillSince   time.Time
	zeroed       bool
	havePos      bool
}

// NewSensor creates a Sensor around raw.
func NewSensor(raw RawSensor, opts Options) *Sensor {
	scale := raw.NativeScale()
	return &Sensor{
		raw:          raw,
		scaler:       NewScaler(scale),
		jitter:       NewJitterFilter(opts.JitterWindow),
		reversed:     opts.Reversed,
		calibrator:   NewCalibrator(scale, opts.Calibration),
		autoZero:     opts.AutoZero,
		autoZeroTime: opts.AutoZeroTime,
	}
}

// Init initializes the underlying hardware.
func (s *Sensor) Init() error {
	if err := s.raw.Init(); err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	return nil
}

// Raw returns the underlying technology-specific sensor.
func (s *Sensor) Raw() RawSensor {
	return s.raw
}

// NativeScale returns the native range of the underlying sensor.
func (s *Sensor) NativeScale() int {
	return s.scaler.NativeScale()
}

// Read acquires one sample and runs it through the pipeline.
// Errors wrap ErrNoReading; the caller should keep its last reading and retry next cycle.
func (s *Sensor) Read() (Reading, error) {
	rr, err := s.raw.ReadRaw()
	if err != nil {
		return Reading{}, err
	}

	pos := s.scaler.Orient(rr.Pos, s.reversed)
	pos = s.jitter.Apply(pos)

	native := RawReading{Pos: pos, Time: rr.Time}
	s.calibrator.Observe(native)
	s.checkAutoZero(native)

	return Reading{
		Position:   s.scaler.Normalize(pos),
		Raw:        pos,
		Calibrated: s.calibrator.Calibration().Apply(pos),
		Time:       rr.Time,
	}, nil
}

// checkAutoZero fires AutoZero once each time the plunger has been still for the
// configured interval. Motion re-arms it.
func (s *Sensor) checkAutoZero(r RawReading) {
	if !s.autoZero || s.autoZeroTime <= 0 || s.calibrator.Learning() {
		return
	}
	az, ok := s.raw.(AutoZeroer)
	if !ok {
		return
	}
	if !s.havePos || r.Pos != s.stillPos {
		s.havePos = true
		s.stillPos = r.Pos
		s.stillSince = r.Time
		s.zeroed = false
		return
	}
	if !s.zeroed && r.Time.Sub(s.stillSince) >= s.autoZeroTime {
		az.AutoZero()
		s.zeroed = true
		s.jitter.SetWindow(s.jitter.Window())
	}
}

// BeginCalibration enters calibration learning mode.
func (s *Sensor) BeginCalibration() {
	s.calibrator.Begin()
}

// EndCalibration freezes and returns the learned calibration.
func (s *Sensor) EndCalibration() Calibration {
	return s.calibrator.End()
}

// Calibrating reports whether calibration is in progress.
func (s *Sensor) Calibrating() bool {
	return s.calibrator.Learning()
}

// Calibration returns the active calibration record.
func (s *Sensor) Calibration() Calibration {
	return s.calibrator.Calibration()
}

// SetCalibration installs a stored calibration record.
func (s *Sensor) SetCalibration(cal Calibration) bool {
	return s.calibrator.Set(cal)
}

// SetJitterWindow changes the jitter window width.
func (s *Sensor) SetJitterWindow(w int) {
	s.jitter.SetWindow(w)
}

// SetReversed changes the orientation flag.
func (s *Sensor) SetReversed(reversed bool) {
	s.reversed = reversed
	s.jitter.SetWindow(s.jitter.Window())
}

// AverageScanTime returns the underlying sensor's average acquisition time.
func (s *Sensor) AverageScanTime() time.Duration {
	return s.raw.AverageScanTime()
}

// Orientation returns the detected orientation, if the sensor can detect it.
func (s *Sensor) Orientation() Orientation {
	if o, ok := s.raw.(OrientationReporter); ok {
		return o.Orientation()
	}
	return OrientationUnknown
}

// Close releases the underlying sensor.
func (s *Sensor) Close() error {
	return s.raw.Close()
}

// ScanTimer keeps a running average of scan durations for RawSensor implementations.
type ScanTimer struct {
	total time.Duration
	n     int64
}

// Add records one scan.
func (t *ScanTimer) Add(d time.Duration) {
	// Restart the average periodically so it tracks the current regime.
	if t.n >= 1<<16 {
		t.total, t.n = t.Average(), 1
	}
	t.total += d
	t.n++
}

// Average returns the mean recorded duration.
func (t *ScanTimer) Average() time.Duration {
	if t.n == 0 {
		return 0
	}
	return t.total / time.Duration(t.n)
}
