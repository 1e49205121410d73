// Command plunger-sensor reads pinball plunger position sensors, detects
// firing, and publishes readings and events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/config"
	"github.com/sweeney/plunger-sensor/internal/metrics"
	"github.com/sweeney/plunger-sensor/internal/mqtt"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/sensor"
	"github.com/sweeney/plunger-sensor/internal/status"
	"github.com/sweeney/plunger-sensor/internal/store"
	"github.com/sweeney/plunger-sensor/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (built-in defaults if empty)")
	simulate := flag.Bool("simulate", false, "Replace all sensor hardware with a simulated plunger")
	printReading := flag.Bool("print-reading", false, "Print one reading per unit and exit")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *simulate {
		for i := range cfg.Units {
			cfg.Units[i].Simulate = true
		}
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	log := setupLogger(cfg.Log)
	if err := run(cfg, *printReading, log); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.GetDefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.Output {
	case "stderr":
		log.SetOutput(os.Stderr)
	case "file":
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("open log file failed, using stdout")
			break
		}
		log.SetOutput(file)
	default:
		log.SetOutput(os.Stdout)
	}
	return log
}

func run(cfg *config.Config, printReading bool, log *logrus.Logger) error {
	registry := sensor.NewRegistry(log)
	defer registry.Close()

	for i, ucfg := range cfg.Units {
		u, err := registry.Bind(i, ucfg)
		if err != nil {
			return fmt.Errorf("init sensors: %w", err)
		}
		log.WithFields(logrus.Fields{"unit": i, "type": u.Type, "simulate": ucfg.Simulate}).Info("sensor bound")
	}

	if printReading {
		return printReadings(os.Stdout, registry.Units(), time.Second)
	}

	ctx := context.Background()
	calStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open calibration store: %w", err)
	}
	defer calStore.Close()
	loadCalibrations(ctx, registry.Units(), calStore, log)

	session := uuid.NewString()

	m := metrics.New()

	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, session, log)
	defer publisher.Close()

	wsBroker := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker, log)
	tracker := status.NewTracker(time.Now(), session, status.Config{
		PollMs:            cfg.Poll.Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Milliseconds(),
		PublishIntervalMs: cfg.MQTT.PublishInterval.Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
		WSBroker:          wsBroker,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	d := newDaemon(registry.Units(), cfg, daemonDeps{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		store:      calStore,
		metrics:    m,
		log:        log.WithField("session", session),
		now:        time.Now,
	})

	// Publish startup event with full status snapshot
	d.refreshStatus()
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("publish startup event failed")
	}

	commands := make(chan web.Command, 4)
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, commands, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTP.Addr).Info("http status server listening")
	}

	log.WithFields(logrus.Fields{
		"poll":      cfg.Poll,
		"units":     len(cfg.Units),
		"broker":    cfg.MQTT.Broker,
		"heartbeat": cfg.Heartbeat,
	}).Info("started")

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.run(ticker.C, sigCh, commands)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return store.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
	}
	return store.NewFileStore(cfg.File), nil
}

// loadCalibrations applies stored calibrations. A unit without a usable
// record keeps the default calibration.
func loadCalibrations(ctx context.Context, units []*sensor.Unit, s store.Store, log logrus.FieldLogger) {
	for _, u := range units {
		ulog := log.WithField("unit", u.Number)
		cal, ok, err := s.Load(ctx, u.Number)
		switch {
		case err != nil:
			ulog.WithError(err).Warn("load calibration failed, using defaults")
		case !ok:
			ulog.Info("no stored calibration, using defaults")
		case !u.Sensor.SetCalibration(cal):
			ulog.WithField("calibration", cal).Warn("stored calibration invalid, using defaults")
		default:
			ulog.WithField("calibration", cal).Info("calibration loaded")
		}
	}
}

// printReadings prints one reading per unit, retrying each until timeout.
func printReadings(w io.Writer, units []*sensor.Unit, timeout time.Duration) error {
	for _, u := range units {
		r, err := readWithin(u.Sensor, timeout)
		if err != nil {
			fmt.Fprintf(w, "unit %d (%v): %v\n", u.Number, u.Type, err)
			continue
		}
		fmt.Fprintf(w, "unit %d (%v): position=%d raw=%d calibrated=%d orientation=%v\n",
			u.Number, u.Type, r.Position, r.Raw, r.Calibrated, u.Sensor.Orientation())
	}
	return nil
}

func readWithin(s *plunger.Sensor, timeout time.Duration) (plunger.Reading, error) {
	deadline := time.Now().Add(timeout)
	for {
		r, err := s.Read()
		if err == nil || !errors.Is(err, plunger.ErrNoReading) || time.Now().After(deadline) {
			return r, err
		}
		time.Sleep(time.Millisecond)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or empty disables.
func resolveWSBroker(ws, broker string, log logrus.FieldLogger) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.WithError(err).WithField("broker", broker).Warn("ws_broker: cannot parse broker")
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
