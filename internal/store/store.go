// Package store persists per-unit calibration records.
package store

import (
	"context"
	"time"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Store loads and saves calibration records by unit number.
type Store interface {
	// Load returns the stored record for unit. ok is false when none is stored.
	Load(ctx context.Context, unit int) (cal plunger.Calibration, ok bool, err error)
	Save(ctx context.Context, unit int, cal plunger.Calibration) error
	Close() error
}

// record is the persisted form of a calibration.
type record struct {
	Min         int   `yaml:"min"`
	Zero        int   `yaml:"zero"`
	Max         int   `yaml:"max"`
	ReleaseTime int64 `yaml:"release_ms"`
}

func toRecord(c plunger.Calibration) record {
	return record{Min: c.Min, Zero: c.Zero, Max: c.Max, ReleaseTime: c.ReleaseTime.Milliseconds()}
}

func (r record) calibration() plunger.Calibration {
	return plunger.Calibration{
		Min:         r.Min,
		Zero:        r.Zero,
		Max:         r.Max,
		ReleaseTime: time.Duration(r.ReleaseTime) * time.Millisecond,
	}
}
