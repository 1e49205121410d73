// Package plunger contains the sensor-independent part of plunger position sensing:
// the raw sensor contract, orientation correction, jitter filtering, scaling to the
// universal 0-65535 range, and calibration.
// This package has NO hardware dependencies. Time is injectable.
package plunger

import (
	"errors"
	"fmt"
	"time"
)

// MaxPosition is the top of the normalized output range.
const MaxPosition = 65535

// ErrNoReading reports that the sensor could not determine a position this cycle.
// It is always recoverable: the caller keeps its last good position and retries.
var ErrNoReading = errors.New("no reading")

// ErrOrientationUnknown is returned by brightness-based sensors when neither end of
// the frame is clearly brighter than the other.
var ErrOrientationUnknown = fmt.Errorf("orientation unknown: %w", ErrNoReading)

// ErrDecodeInconsistent is returned by the bar-code sensor when a bit could not be
// classified or the decoded code has no position.
var ErrDecodeInconsistent = fmt.Errorf("decode inconsistent: %w", ErrNoReading)

// RawReading is a position in the sensor's native units.
type RawReading struct {
	Pos  int
	Time time.Time
}

// Reading is the output of one successful read cycle.
type Reading struct {
	// Position is the normalized position, 0..MaxPosition.
	Position int
	// Raw is the orientation-corrected, jitter-filtered native position.
	Raw int
	// Calibrated is the position in calibrated joystick units (see Calibration.Apply).
	Calibrated int
	Time       time.Time
}

// Orientation is the detected direction of the sensor's bright end.
type Orientation int

const (
	OrientationUnknown  Orientation = 0
	OrientationStandard Orientation = 1
	OrientationReversed Orientation = -1
)

func (o Orientation) String() string {
	switch o {
	case OrientationStandard:
		return "standard"
	case OrientationReversed:
		return "reversed"
	default:
		return "unknown"
	}
}

// RawSensor is implemented by every sensor technology.
type RawSensor interface {
	// Init prepares the hardware. It is called once before the first ReadRaw.
	Init() error

	// ReadRaw acquires a fresh sample and returns the position in native units.
	// Failure to produce a position returns an error wrapping ErrNoReading.
	ReadRaw() (RawReading, error)

	// NativeScale is the size of the native position range.
	NativeScale() int

	// AverageScanTime is the average time spent acquiring and processing a sample.
	AverageScanTime() time.Duration

	// Close releases hardware resources.
	Close() error
}

// OrientationReporter is implemented by sensors that can tell which way round they are mounted.
type OrientationReporter interface {
	Orientation() Orientation
}

// AutoZeroer is implemented by relative sensors that can be re-referenced to the park position.
type AutoZeroer interface {
	AutoZero()
}

// FrameReporter is implemented by imaging sensors to expose the last processed pixel array.
type FrameReporter interface {
	// LastFrame copies the most recent pixels into dst and returns the filled slice.
	LastFrame(dst []byte) []byte
}

// BarCode is the per-bit decode diagnostic of the most recent bar-code frame.
type BarCode struct {
	Offset int    // pixel offset of the first code bit
	Code   uint32 // raw Gray code as read
	Mask   uint32 // bits that were read with confidence
	Bits   int
}

// BarCodeReporter is implemented by the bar-code sensor.
type BarCodeReporter interface {
	LastBarCode() BarCode
}
