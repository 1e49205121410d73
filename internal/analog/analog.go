// Package analog reads plunger position from a potentiometer on an ADC channel.
package analog

import (
	"fmt"
	"time"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// NativeScale is the sampler's output range: every ADC is rescaled to 16 bits.
const NativeScale = 65535

// Sample count bounds. Fewer samples let supply noise through; more cost scan time.
const (
	DefaultSamples = 4
	MinSamples     = 3
	MaxSamples     = 5
)

// ADC is one analog input channel.
type ADC interface {
	// Read returns one conversion in device counts.
	Read() (int, error)
	// Bits is the converter resolution.
	Bits() int
	Close() error
}

// Sampler averages consecutive ADC conversions into one raw reading.
type Sampler struct {
	adc     ADC
	samples int
	max     int
	timer   plunger.ScanTimer
	now     func() time.Time
}

// NewSampler creates a sampler averaging samples conversions, clamped to
// [MinSamples, MaxSamples]. Zero selects DefaultSamples.
func NewSampler(adc ADC, samples int) *Sampler {
	switch {
	case samples == 0:
		samples = DefaultSamples
	case samples < MinSamples:
		samples = MinSamples
	case samples > MaxSamples:
		samples = MaxSamples
	}
	bits := adc.Bits()
	if bits < 1 || bits > 16 {
		bits = 16
	}
	return &Sampler{adc: adc, samples: samples, max: 1<<bits - 1, now: time.Now}
}

// Samples returns the number of conversions averaged per reading.
func (s *Sampler) Samples() int {
	return s.samples
}

// Init checks that the channel can be read.
func (s *Sampler) Init() error {
	if _, err := s.adc.Read(); err != nil {
		return fmt.Errorf("initial adc read: %w", err)
	}
	return nil
}

// ReadRaw averages the conversions. The timestamp is the midpoint of the sampling interval.
func (s *Sampler) ReadRaw() (plunger.RawReading, error) {
	t0 := s.now()
	sum := 0
	for i := 0; i < s.samples; i++ {
		v, err := s.adc.Read()
		if err != nil {
			return plunger.RawReading{}, fmt.Errorf("adc read: %v: %w", err, plunger.ErrNoReading)
		}
		sum += v
	}
	t1 := s.now()
	d := t1.Sub(t0)
	s.timer.Add(d)

	avg := (sum + s.samples/2) / s.samples
	pos := avg
	if s.max != NativeScale {
		pos = (avg*NativeScale + s.max/2) / s.max
	}
	return plunger.RawReading{Pos: pos, Time: t0.Add(d / 2)}, nil
}

// NativeScale returns 65535.
func (s *Sampler) NativeScale() int {
	return NativeScale
}

// AverageScanTime returns the mean sampling time.
func (s *Sampler) AverageScanTime() time.Duration {
	return s.timer.Average()
}

// Close releases the ADC.
func (s *Sampler) Close() error {
	return s.adc.Close()
}
