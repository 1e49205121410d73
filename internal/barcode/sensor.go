package barcode

import (
	"context"
	"time"

	"github.com/sweeney/plunger-sensor/internal/imaging"
	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// DefaultDarkLevel is the brightness below which a pixel counts as dark for auto-exposure.
const DefaultDarkLevel = 128

// Sensor is the bar-code plunger sensor: an imaging.Capture feeding a Decoder.
type Sensor struct {
	capture   *imaging.Capture
	decoder   *Decoder
	exposure  *imaging.Exposure
	darkLevel int
	timer     plunger.ScanTimer
	now       func() time.Time
	pix       []byte
	cancel    context.CancelFunc
}

// NewSensor creates a bar-code sensor. exposure may be nil to disable auto-exposure.
func NewSensor(capture *imaging.Capture, decoder *Decoder, exposure *imaging.Exposure) *Sensor {
	return &Sensor{
		capture:   capture,
		decoder:   decoder,
		exposure:  exposure,
		darkLevel: DefaultDarkLevel,
		now:       time.Now,
		pix:       make([]byte, capture.Pixels()),
	}
}

// Init starts frame transfers.
func (s *Sensor) Init() error {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.capture.Start(ctx)
	return nil
}

// ReadRaw acquires a frame and decodes the bar code.
func (s *Sensor) ReadRaw() (plunger.RawReading, error) {
	t0 := s.now()
	f, err := s.capture.Copy(s.pix)
	if err != nil {
		return plunger.RawReading{}, err
	}
	bin, derr := s.decoder.Process(s.pix)

	s.adjustExposure()
	s.timer.Add(s.now().Sub(t0))
	if derr != nil {
		return plunger.RawReading{}, derr
	}
	return plunger.RawReading{Pos: bin, Time: f.Time}, nil
}

// adjustExposure compares the dark pixel count with the count the code geometry
// guarantees and steps the integration time toward it.
func (s *Sensor) adjustExposure() {
	if s.exposure == nil {
		return
	}
	dir := exposureDirection(s.pix, s.darkLevel, s.decoder.Geometry().ExpectedDark())
	if dir == 0 {
		return
	}
	s.exposure.Nudge(dir)
	s.capture.SetMinIntegrationTime(s.exposure.Extension())
}

// exposureDirection returns +1 when the frame has too many dark pixels (lengthen
// integration), -1 when too few, 0 inside a tolerance band of 1/8 of expected.
func exposureDirection(pix []byte, level, expected int) int {
	dark := 0
	for _, p := range pix {
		if int(p) < level {
			dark++
		}
	}
	tol := expected / 8
	switch {
	case dark > expected+tol:
		return 1
	case dark < expected-tol:
		return -1
	}
	return 0
}

// NativeScale is the number of printed positions.
func (s *Sensor) NativeScale() int {
	return s.decoder.Geometry().Bins
}

// AverageScanTime returns the mean acquire-and-decode time.
func (s *Sensor) AverageScanTime() time.Duration {
	return s.timer.Average()
}

// LastFrame copies the last processed frame into dst.
func (s *Sensor) LastFrame(dst []byte) []byte {
	return append(dst[:0], s.pix...)
}

// LastBarCode returns per-bit diagnostics for the last frame.
func (s *Sensor) LastBarCode() plunger.BarCode {
	return s.decoder.Last()
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
