package sensor

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/analog"
	"github.com/sweeney/plunger-sensor/internal/barcode"
	"github.com/sweeney/plunger-sensor/internal/edge"
	"github.com/sweeney/plunger-sensor/internal/gpio"
	"github.com/sweeney/plunger-sensor/internal/imaging"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/quadrature"
	"github.com/sweeney/plunger-sensor/internal/simulator"
)

// New builds the sensor for cfg. The returned sensor has not been initialized.
func New(cfg Config, log logrus.FieldLogger) (*plunger.Sensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, _ := ParseType(cfg.Type)
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	raw, err := newRaw(t, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("%v sensor: %w", t, err)
	}
	return plunger.NewSensor(raw, plunger.Options{
		JitterWindow: cfg.JitterWindow,
		Reversed:     cfg.Reversed,
		Calibration:  plunger.DefaultCalibration(raw.NativeScale()),
		AutoZero:     cfg.AutoZero,
		AutoZeroTime: cfg.AutoZeroTime,
	}), nil
}

func newRaw(t Type, cfg Config, log logrus.FieldLogger) (plunger.RawSensor, error) {
	motion := simulator.DefaultMotion(time.Now())

	switch t {
	case ImageSerial, ImageParallel:
		capture, err := newCapture(t, cfg, motion, simulator.SceneShadow, log)
		if err != nil {
			return nil, err
		}
		mode, _ := edge.ParseScanMode(cfg.Image.ScanMode)
		dcfg := edge.DefaultConfig()
		dcfg.Mode = mode
		return edge.NewSensor(capture, edge.NewDetector(dcfg), newExposure(cfg.Image)), nil

	case BarCode:
		capture, err := newCapture(t, cfg, motion, simulator.SceneBarCode, log)
		if err != nil {
			return nil, err
		}
		dec, err := barcode.NewDecoder(barcode.Config{Geometry: cfg.BarCode.Geometry(), MinDelta: cfg.BarCode.MinDelta})
		if err != nil {
			return nil, err
		}
		return barcode.NewSensor(capture, dec, newExposure(cfg.Image)), nil

	case Potentiometer:
		var adc analog.ADC
		if cfg.Simulate {
			adc = simulator.NewADC(motion, cfg.Analog.Bits, 2, time.Now().UnixNano())
		} else {
			a, err := analog.OpenIIO(cfg.Analog.Dir, cfg.Analog.Device, cfg.Pins[0], cfg.Analog.Bits)
			if err != nil {
				return nil, err
			}
			adc = a
		}
		return analog.NewSampler(adc, cfg.Analog.Samples), nil

	case OpticalQuadrature, MagneticQuadrature:
		qcfg := quadrature.Config{
			Kind:        quadrature.Optical,
			NativeScale: cfg.Quadrature.NativeScale,
			Park:        cfg.Quadrature.Park,
		}
		if t == MagneticQuadrature {
			qcfg.Kind = quadrature.Magnetic
		}
		var w gpio.EdgeWatcher
		if cfg.Simulate {
			w = simulator.NewEdges(motion, qcfg.Scale(), time.Millisecond)
		} else {
			w = gpio.NewRealWatcher(cfg.Quadrature.Chip, cfg.Pins[0], cfg.Pins[1], cfg.Quadrature.PullUp)
		}
		return quadrature.NewSensor(w, qcfg), nil
	}
	return noneSensor{}, nil
}

func newCapture(t Type, cfg Config, motion simulator.Motion, scene simulator.Scene, log logrus.FieldLogger) (*imaging.Capture, error) {
	pixels := cfg.pixels(t)
	ccfg := imaging.DefaultCaptureConfig()
	if cfg.Image.MaxIntegration > 0 {
		ccfg.MaxIntegration = cfg.Image.MaxIntegration
	}
	if cfg.Image.MaxTransfer > 0 {
		ccfg.MaxTransfer = cfg.Image.MaxTransfer
	}

	var src imaging.FrameSource
	if cfg.Simulate {
		lanes := cfg.Image.Lanes
		if t == ImageParallel && lanes < 2 {
			lanes = 2
		}
		sim, err := simulator.NewFrameSource(simulator.FrameConfig{
			Scene:    scene,
			Pixels:   pixels,
			Lanes:    lanes,
			Transfer: time.Millisecond,
			Light:    150,
			Dark:     20,
			Noise:    3,
			Geometry: cfg.BarCode.Geometry(),
			Offset:   12,
			Seed:     time.Now().UnixNano(),
		}, motion)
		if err != nil {
			return nil, err
		}
		src = sim
	} else {
		dev, err := imaging.OpenDevice(cfg.Image.Device, pixels)
		if err != nil {
			return nil, err
		}
		src = dev
	}
	return imaging.NewCapture(src, ccfg, log.WithField("pixels", pixels)), nil
}

func newExposure(cfg ImageConfig) *imaging.Exposure {
	if !cfg.AutoExposure {
		return nil
	}
	max := cfg.MaxIntegration
	if max <= 0 {
		max = imaging.DefaultCaptureConfig().MaxIntegration
	}
	return imaging.NewExposure(cfg.ExposureStep, max)
}

// noneSensor is bound to units with no plunger attached. Every read fails.
type noneSensor struct{}

func (noneSensor) Init() error { return nil }

func (noneSensor) ReadRaw() (plunger.RawReading, error) {
	return plunger.RawReading{}, fmt.Errorf("no sensor configured: %w", plunger.ErrNoReading)
}

func (noneSensor) NativeScale() int { return 1 }

func (noneSensor) AverageScanTime() time.Duration { return 0 }

func (noneSensor) Close() error { return nil }
