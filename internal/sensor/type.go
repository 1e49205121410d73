// Package sensor binds configured plunger sensor units to the shared pipeline.
package sensor

import (
	"fmt"
	"strings"
)

// Type is the sensor technology of a unit.
type Type int

const (
	None Type = iota
	ImageSerial
	ImageParallel
	Potentiometer
	OpticalQuadrature
	MagneticQuadrature
	BarCode
)

var typeNames = [...]string{
	None:               "none",
	ImageSerial:        "image-serial",
	ImageParallel:      "image-parallel",
	Potentiometer:      "potentiometer",
	OpticalQuadrature:  "optical-quadrature",
	MagneticQuadrature: "magnetic-quadrature",
	BarCode:            "bar-code",
}

// String returns the configuration name of t.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType parses a configuration name. The empty string is None.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for i, name := range typeNames {
		if s == name {
			return Type(i), nil
		}
	}
	return None, fmt.Errorf("unknown sensor type %q", s)
}

// Imaging reports whether t reads a linear image sensor.
func (t Type) Imaging() bool {
	return t == ImageSerial || t == ImageParallel || t == BarCode
}

// Quadrature reports whether t counts quadrature edges.
func (t Type) Quadrature() bool {
	return t == OpticalQuadrature || t == MagneticQuadrature
}
