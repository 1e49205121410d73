package sensor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Unit is one bound sensor. The sensor owns every resource it borrowed
// (capture pipeline, GPIO lines, ADC handle) and releases them on Close.
type Unit struct {
	Number int
	Type   Type
	Sensor *plunger.Sensor
}

// Registry owns the bound units, indexed by unit number.
type Registry struct {
	mu    sync.Mutex
	units map[int]*Unit
	build func(Config, logrus.FieldLogger) (*plunger.Sensor, error)
	log   logrus.FieldLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{units: make(map[int]*Unit), build: New, log: log}
}

// Bind builds and initializes the sensor for cfg as unit n, replacing and
// closing any unit already bound to n.
func (r *Registry) Bind(n int, cfg Config) (*Unit, error) {
	t, err := ParseType(cfg.Type)
	if err != nil {
		return nil, err
	}
	log := r.log
	if log != nil {
		log = log.WithFields(logrus.Fields{"unit": n, "type": t})
	}
	s, err := r.build(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("bind unit %d: %w", n, err)
	}
	if err := s.Init(); err != nil {
		s.Close()
		return nil, fmt.Errorf("bind unit %d: %w", n, err)
	}

	u := &Unit{Number: n, Type: t, Sensor: s}
	r.mu.Lock()
	old := r.units[n]
	r.units[n] = u
	r.mu.Unlock()

	if old != nil {
		if err := old.Sensor.Close(); err != nil && r.log != nil {
			r.log.WithError(err).WithField("unit", n).Warn("close replaced unit")
		}
	}
	return u, nil
}

// Unit returns unit n.
func (r *Registry) Unit(n int) (*Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[n]
	return u, ok
}

// Units returns the bound units ordered by number.
func (r *Registry) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Close releases every unit.
func (r *Registry) Close() error {
	r.mu.Lock()
	units := r.units
	r.units = make(map[int]*Unit)
	r.mu.Unlock()

	var errs []error
	for n, u := range units {
		if err := u.Sensor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close unit %d: %w", n, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
