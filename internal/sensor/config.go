package sensor

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/plunger-sensor/internal/barcode"
	"github.com/sweeney/plunger-sensor/internal/edge"
)

// MaxPins is the number of generic pin roles a unit may assign.
const MaxPins = 4

// Config describes one sensor unit. Pin meaning depends on Type: quadrature
// sensors use pins[0] for A and pins[1] for B, potentiometers use pins[0] as
// the ADC channel.
type Config struct {
	Type         string        `yaml:"type"`
	Pins         []int         `yaml:"pins"`
	JitterWindow int           `yaml:"jitter_window"`
	Reversed     bool          `yaml:"reversed"`
	AutoZero     bool          `yaml:"auto_zero"`
	AutoZeroTime time.Duration `yaml:"auto_zero_time"`

	// Simulate replaces the hardware with a simulated plunger.
	Simulate bool `yaml:"simulate"`

	Image      ImageConfig      `yaml:"image"`
	BarCode    BarCodeConfig    `yaml:"bar_code"`
	Quadrature QuadratureConfig `yaml:"quadrature"`
	Analog     AnalogConfig     `yaml:"analog"`
}

// ImageConfig configures image and bar-code sensors.
type ImageConfig struct {
	Device         string        `yaml:"device"`
	Pixels         int           `yaml:"pixels"` // 0 selects the technology default
	Lanes          int           `yaml:"lanes"`
	ScanMode       string        `yaml:"scan_mode"`
	MaxIntegration time.Duration `yaml:"max_integration"`
	ExposureStep   time.Duration `yaml:"exposure_step"`
	MaxTransfer    time.Duration `yaml:"max_transfer"`
	AutoExposure   bool          `yaml:"auto_exposure"`
}

// BarCodeConfig configures the printed scale.
type BarCodeConfig struct {
	Bits           int `yaml:"bits"`
	BitWidth       int `yaml:"bit_width"`
	Offset         int `yaml:"offset"`
	DelimiterWidth int `yaml:"delimiter_width"`
	SearchWidth    int `yaml:"search_width"`
	Bins           int `yaml:"bins"`
	MinDelta       int `yaml:"min_delta"`
}

// QuadratureConfig configures quadrature sensors.
type QuadratureConfig struct {
	Chip        string `yaml:"chip"`
	PullUp      bool   `yaml:"pull_up"`
	NativeScale int    `yaml:"native_scale"`
	Park        int    `yaml:"park"`
}

// AnalogConfig configures potentiometer sensors.
type AnalogConfig struct {
	Dir     string `yaml:"dir"`
	Device  int    `yaml:"device"`
	Bits    int    `yaml:"bits"`
	Samples int    `yaml:"samples"`
}

// DefaultConfig returns a disabled unit with per-technology defaults filled in.
func DefaultConfig() Config {
	g := barcode.DefaultGeometry()
	return Config{
		Type:         None.String(),
		JitterWindow: 4,
		AutoZeroTime: 5 * time.Second,
		Image: ImageConfig{
			Lanes:          1,
			ScanMode:       edge.ScanGap.String(),
			MaxIntegration: 2500 * time.Microsecond,
			ExposureStep:   50 * time.Microsecond,
			MaxTransfer:    5 * time.Millisecond,
			AutoExposure:   true,
		},
		BarCode: BarCodeConfig{
			Bits:           g.Bits,
			BitWidth:       g.BitWidth,
			Offset:         g.Offset,
			DelimiterWidth: g.DelimiterWidth,
			SearchWidth:    g.SearchWidth,
			Bins:           g.Bins,
			MinDelta:       barcode.DefaultConfig().MinDelta,
		},
		Quadrature: QuadratureConfig{Chip: "gpiochip0", Park: -1},
		Analog:     AnalogConfig{Bits: 12, Samples: 4},
	}
}

// UnmarshalYAML decodes a unit over DefaultConfig so omitted fields keep their defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// Geometry returns the bar-code geometry.
func (c BarCodeConfig) Geometry() barcode.Geometry {
	return barcode.Geometry{
		Bits:           c.Bits,
		BitWidth:       c.BitWidth,
		Offset:         c.Offset,
		DelimiterWidth: c.DelimiterWidth,
		SearchWidth:    c.SearchWidth,
		Bins:           c.Bins,
	}
}

// Validate checks the unit configuration.
func (c Config) Validate() error {
	t, err := ParseType(c.Type)
	if err != nil {
		return err
	}
	if len(c.Pins) > MaxPins {
		return fmt.Errorf("%d pins assigned, at most %d", len(c.Pins), MaxPins)
	}
	if c.JitterWindow < 0 {
		return fmt.Errorf("jitter_window %d must not be negative", c.JitterWindow)
	}
	switch {
	case t.Quadrature() && !c.Simulate:
		if len(c.Pins) < 2 {
			return fmt.Errorf("%v needs pins A and B", t)
		}
	case t == Potentiometer && !c.Simulate:
		if len(c.Pins) < 1 {
			return fmt.Errorf("potentiometer needs an ADC channel pin")
		}
	case t.Imaging():
		if c.Image.Pixels < 0 {
			return fmt.Errorf("image pixels %d must not be negative", c.Image.Pixels)
		}
		if l := c.Image.Lanes; l > 1 && c.pixels(t)%l != 0 {
			return fmt.Errorf("%d pixels do not split into %d lanes", c.pixels(t), l)
		}
		if !c.Simulate && c.Image.Device == "" {
			return fmt.Errorf("%v needs an image device", t)
		}
		if _, err := edge.ParseScanMode(c.Image.ScanMode); err != nil {
			return err
		}
	}
	if t == BarCode {
		if err := c.BarCode.Geometry().Validate(); err != nil {
			return fmt.Errorf("bar_code: %w", err)
		}
	}
	return nil
}

// Default frame sizes.
const (
	DefaultImagePixels   = 1280
	DefaultBarCodePixels = 128
)

func (c Config) pixels(t Type) int {
	switch {
	case c.Image.Pixels > 0:
		return c.Image.Pixels
	case t == BarCode:
		return DefaultBarCodePixels
	}
	return DefaultImagePixels
}
