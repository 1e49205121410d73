package edge

import (
	"context"
	"time"

	"github.com/sweeney/plunger-sensor/internal/imaging"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Exposure targets for the brightest pixel in a frame.
const (
	targetPeakLow  = 160
	targetPeakHigh = 250
)

// Sensor is the shadow-edge plunger sensor: an imaging.Capture feeding a Detector.
type Sensor struct {
	capture  *imaging.Capture
	detector *Detector
	exposure *imaging.Exposure
	timer    plunger.ScanTimer
	now      func() time.Time
	pix      []byte
	cancel   context.CancelFunc
}

// NewSensor creates an edge sensor. exposure may be nil to disable auto-exposure.
func NewSensor(capture *imaging.Capture, detector *Detector, exposure *imaging.Exposure) *Sensor {
	return &Sensor{
		capture:  capture,
		detector: detector,
		exposure: exposure,
		now:      time.Now,
		pix:      make([]byte, capture.Pixels()),
	}
}

// Init starts frame transfers.
func (s *Sensor) Init() error {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.capture.Start(ctx)
	return nil
}

// ReadRaw acquires a frame and locates the shadow edge.
func (s *Sensor) ReadRaw() (plunger.RawReading, error) {
	t0 := s.now()
	f, err := s.capture.Copy(s.pix)
	if err != nil {
		return plunger.RawReading{}, err
	}
	pos, perr := s.detector.Process(s.pix)

	s.adjustExposure()
	s.timer.Add(s.now().Sub(t0))
	if perr != nil {
		return plunger.RawReading{}, perr
	}
	return plunger.RawReading{Pos: pos, Time: f.Time}, nil
}

// adjustExposure steers the brightest pixel into [targetPeakLow, targetPeakHigh).
func (s *Sensor) adjustExposure() {
	if s.exposure == nil {
		return
	}
	peak := 0
	for _, p := range s.pix {
		if int(p) > peak {
			peak = int(p)
		}
	}
	switch {
	case peak < targetPeakLow:
		s.exposure.Nudge(1)
	case peak >= targetPeakHigh:
		s.exposure.Nudge(-1)
	default:
		return
	}
	s.capture.SetMinIntegrationTime(s.exposure.Extension())
}

// NativeScale is the pixel count.
func (s *Sensor) NativeScale() int {
	return s.capture.Pixels()
}

// AverageScanTime returns the mean acquire-and-process time.
func (s *Sensor) AverageScanTime() time.Duration {
	return s.timer.Average()
}

// Orientation returns the detected orientation.
func (s *Sensor) Orientation() plunger.Orientation {
	return s.detector.Orientation()
}

// LastFrame copies the last processed frame into dst.
func (s *Sensor) LastFrame(dst []byte) []byte {
	return append(dst[:0], s.pix...)
}

// IntegrationExtension returns the auto-exposure extension currently applied.
func (s *Sensor) IntegrationExtension() time.Duration {
	return s.capture.MinIntegrationTime()
}

// Close stops transfers and releases the source.
func (s *Sensor) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.capture.Stop()
}
