// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/sensor"
)

// Config is the daemon configuration.
type Config struct {
	Poll      time.Duration   `yaml:"poll"`
	Heartbeat time.Duration   `yaml:"heartbeat"`
	Units     []sensor.Config `yaml:"units"`
	Firing    FiringConfig    `yaml:"firing"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// FiringConfig tunes firing detection, in calibrated joystick units.
type FiringConfig struct {
	PullThreshold int           `yaml:"pull_threshold"`
	RestBand      int           `yaml:"rest_band"`
	Debounce      time.Duration `yaml:"debounce"`
	MaxRelease    time.Duration `yaml:"max_release"`
}

// MQTTConfig configures telemetry.
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	WSBroker        string        `yaml:"ws_broker"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects calibration persistence: redis when RedisAddr is set,
// otherwise the YAML file at File.
type StoreConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	File          string `yaml:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// GetDefaultConfig returns the default configuration: one unit with no sensor.
func GetDefaultConfig() *Config {
	firing := logic.DefaultConfig()
	return &Config{
		Poll:      time.Millisecond,
		Heartbeat: 15 * time.Minute,
		Units:     []sensor.Config{sensor.DefaultConfig()},
		Firing: FiringConfig{
			PullThreshold: firing.PullThreshold,
			RestBand:      firing.RestBand,
			Debounce:      firing.Debounce,
			MaxRelease:    firing.MaxRelease,
		},
		MQTT: MQTTConfig{
			Broker:          "tcp://192.168.1.200:1883",
			WSBroker:        "=broker",
			PublishInterval: 100 * time.Millisecond,
		},
		HTTP: HTTPConfig{Addr: ":80"},
		Store: StoreConfig{
			KeyPrefix: "plunger",
			File:      "/var/lib/plunger-sensor/calibration.yaml",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Poll <= 0 {
		return fmt.Errorf("poll %v must be positive", c.Poll)
	}
	if len(c.Units) == 0 {
		return errors.New("no units configured")
	}
	for i, u := range c.Units {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
	}
	if c.Firing.PullThreshold <= c.Firing.RestBand {
		return fmt.Errorf("firing pull_threshold %d must exceed rest_band %d", c.Firing.PullThreshold, c.Firing.RestBand)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q must be text or json", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			return errors.New("log output file needs file_path")
		}
	default:
		return fmt.Errorf("log output %q must be stdout, stderr or file", c.Log.Output)
	}
	if c.Store.RedisAddr == "" && c.Store.File == "" {
		return errors.New("store needs redis_addr or file")
	}
	return nil
}

// Detector converts to the detector configuration.
func (f FiringConfig) Detector() logic.Config {
	return logic.Config{
		PullThreshold: f.PullThreshold,
		RestBand:      f.RestBand,
		Debounce:      f.Debounce,
		MaxRelease:    f.MaxRelease,
	}
}
