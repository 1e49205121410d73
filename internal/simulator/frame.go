package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/plunger-sensor/internal/barcode"
)

// Scene selects what the simulated optics see.
type Scene int

const (
	// SceneShadow is a lit sensor with the plunger shadow covering the retracted side.
	SceneShadow Scene = iota
	// SceneBarCode is a printed Gray-code scale moving past the sensor.
	SceneBarCode
)

// FrameConfig configures a FrameSource.
type FrameConfig struct {
	Scene    Scene
	Pixels   int
	Lanes    int           // parallel readout lanes; 1 for a serial sensor
	Transfer time.Duration // simulated transfer time per frame
	// Light is the lit brightness with no integration extension. Brightness grows
	// linearly with extension, doubling at Transfer (or 1ms when Transfer is zero).
	Light    byte
	Dark     byte
	Noise    int // peak uniform pixel noise
	Geometry barcode.Geometry
	Offset   int // bar code pixel offset
	Seed     int64
}

// FrameSource renders frames of the motion model. It implements imaging.FrameSource.
type FrameSource struct {
	cfg    FrameConfig
	motion Motion
	now    func() time.Time
	rngs   []*rand.Rand
	sleep  func(time.Duration)
}

// NewFrameSource creates a simulated frame source.
func NewFrameSource(cfg FrameConfig, m Motion) (*FrameSource, error) {
	if cfg.Pixels <= 0 {
		return nil, fmt.Errorf("pixels %d must be positive", cfg.Pixels)
	}
	if cfg.Lanes < 1 {
		cfg.Lanes = 1
	}
	if cfg.Pixels%cfg.Lanes != 0 {
		return nil, fmt.Errorf("pixels %d not divisible into %d lanes", cfg.Pixels, cfg.Lanes)
	}
	if cfg.Scene == SceneBarCode {
		if err := cfg.Geometry.Validate(); err != nil {
			return nil, fmt.Errorf("bar code geometry: %w", err)
		}
	}
	s := &FrameSource{cfg: cfg, motion: m, now: time.Now, sleep: time.Sleep}
	for i := 0; i < cfg.Lanes; i++ {
		s.rngs = append(s.rngs, rand.New(rand.NewSource(cfg.Seed+int64(i))))
	}
	return s, nil
}

// Pixels returns the frame size.
func (s *FrameSource) Pixels() int {
	return s.cfg.Pixels
}

// Capture renders the scene at the current motion position into dst, each
// lane filled concurrently, then waits out the transfer time.
func (s *FrameSource) Capture(dst []byte, integration time.Duration) error {
	pos := s.motion.At(s.now())
	scene := make([]byte, len(dst))
	light, dark := s.levels(integration)
	s.paint(scene, pos, light, dark)

	lane := len(dst) / s.cfg.Lanes
	var g errgroup.Group
	for i := 0; i < s.cfg.Lanes; i++ {
		i := i
		g.Go(func() error {
			lo, hi := i*lane, (i+1)*lane
			rng := s.rngs[i]
			for p := lo; p < hi; p++ {
				v := int(scene[p])
				if s.cfg.Noise > 0 {
					v += rng.Intn(2*s.cfg.Noise+1) - s.cfg.Noise
				}
				dst[p] = clampByte(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("lane readout: %w", err)
	}

	if s.cfg.Transfer > 0 {
		s.sleep(s.cfg.Transfer)
	}
	return nil
}

func (s *FrameSource) levels(integration time.Duration) (byte, byte) {
	ref := s.cfg.Transfer
	if ref <= 0 {
		ref = time.Millisecond
	}
	gain := 1 + float64(integration)/float64(ref)
	return clampByte(int(float64(s.cfg.Light) * gain)), clampByte(int(float64(s.cfg.Dark) * gain))
}

func (s *FrameSource) paint(dst []byte, pos float64, light, dark byte) {
	switch s.cfg.Scene {
	case SceneBarCode:
		g := s.cfg.Geometry
		bin := int(pos*float64(g.Bins-1) + 0.5)
		barcode.Render(dst, g, s.cfg.Offset, bin, light, dark)
	default:
		// The shadow never fully covers or clears the sensor.
		margin := len(dst) / 16
		edge := margin + int(pos*float64(len(dst)-2*margin)+0.5)
		for i := range dst {
			if i < edge {
				dst[i] = light
			} else {
				dst[i] = dark
			}
		}
	}
}

// Close is a no-op.
func (s *FrameSource) Close() error {
	return nil
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
