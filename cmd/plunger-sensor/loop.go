package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plunger-sensor/internal/config"
	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/metrics"
	"github.com/sweeney/plunger-sensor/internal/mqtt"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/sensor"
	"github.com/sweeney/plunger-sensor/internal/status"
	"github.com/sweeney/plunger-sensor/internal/store"
	"github.com/sweeney/plunger-sensor/internal/web"
)

const storeTimeout = 2 * time.Second

type daemonDeps struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	store      store.Store
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	now        func() time.Time
}

// unitState is the loop's per-unit bookkeeping.
type unitState struct {
	unit       *sensor.Unit
	detector   *logic.Detector
	last       plunger.Reading
	hasReading bool
	noReadings uint64
}

// daemon owns the bound sensors. Every sensor call happens on the goroutine
// running run; HTTP requests reach it only through the command channel.
type daemon struct {
	daemonDeps
	units         []*unitState
	throttle      *mqtt.Throttle
	heartbeat     time.Duration
	lastHeartbeat time.Time
}

func newDaemon(units []*sensor.Unit, cfg *config.Config, deps daemonDeps) *daemon {
	start := deps.now()
	d := &daemon{
		daemonDeps:    deps,
		throttle:      mqtt.NewThrottle(cfg.MQTT.PublishInterval),
		heartbeat:     cfg.Heartbeat,
		lastHeartbeat: start,
	}
	for _, u := range units {
		d.units = append(d.units, &unitState{
			unit:     u,
			detector: logic.NewDetector(cfg.Firing.Detector(), start),
		})
	}
	return d
}

func (d *daemon) run(tick <-chan time.Time, sig <-chan os.Signal, commands <-chan web.Command) error {
	for {
		select {
		case s := <-sig:
			d.log.WithField("signal", s).Info("shutting down")
			d.shutdown(signalName(s))
			return nil

		case cmd := <-commands:
			d.handleCommand(cmd)

		case <-tick:
			t := d.now()
			for _, us := range d.units {
				d.poll(us, t)
			}
			d.checkHeartbeat(t)
			if d.mqttStatus != nil {
				connected := d.mqttStatus.IsConnected()
				d.tracker.SetMQTTConnected(connected)
				d.metrics.SetMQTTConnected(connected)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// poll reads one unit, runs firing detection and publishes the results.
func (d *daemon) poll(us *unitState, t time.Time) {
	n := us.unit.Number
	start := time.Now()
	r, err := us.unit.Sensor.Read()
	d.metrics.ObserveRead(n, r, err, time.Since(start))
	if err != nil {
		us.noReadings++
		if !errors.Is(err, plunger.ErrNoReading) {
			d.log.WithError(err).WithField("unit", n).Warn("sensor read error")
		}
		d.updateStatus(us)
		return
	}
	us.last, us.hasReading = r, true

	at := r.Time
	if at.IsZero() {
		at = t
	}
	for _, ev := range us.detector.Process(logic.Input{Position: r.Calibrated, Time: at}) {
		d.log.WithFields(logrus.Fields{
			"unit":     n,
			"state":    ev.State,
			"position": ev.Position,
			"peak":     ev.Peak,
			"duration": ev.Duration,
		}).Infof("event: %s", ev.Type)
		d.metrics.ObserveEvent(n, string(ev.Type))
		if err := d.publisher.Publish(n, ev); err != nil {
			d.log.WithError(err).Warn("publish event failed")
		}
	}

	if d.throttle.Allow(n, t) {
		if err := d.publisher.PublishReading(n, r); err != nil {
			d.log.WithError(err).Debug("publish reading failed")
		}
	}
	d.updateStatus(us)
}

type integrationReporter interface {
	IntegrationExtension() time.Duration
}

type invalidTransitionReporter interface {
	InvalidTransitions() uint64
}

func (d *daemon) updateStatus(us *unitState) {
	s := us.unit.Sensor
	u := status.UnitStatus{
		Number:      us.unit.Number,
		Type:        us.unit.Type.String(),
		State:       us.detector.CurrentState(),
		Baselined:   us.detector.IsBaselined(),
		Counts:      us.detector.EventCountsSnapshot(),
		Reading:     us.last,
		HasReading:  us.hasReading,
		NoReadings:  us.noReadings,
		Orientation: s.Orientation(),
		ScanTime:    s.AverageScanTime(),
		Calibration: s.Calibration(),
		Calibrating: s.Calibrating(),
	}
	if ir, ok := s.Raw().(integrationReporter); ok {
		u.Integration = ir.IntegrationExtension()
		d.metrics.SetIntegration(u.Number, u.Integration)
	}
	if tr, ok := s.Raw().(invalidTransitionReporter); ok {
		u.InvalidTransitions = tr.InvalidTransitions()
		d.metrics.SetInvalidTransitions(u.Number, u.InvalidTransitions)
	}
	d.tracker.UpdateUnit(u)
}

// refreshStatus publishes every unit's state to the tracker without reading.
func (d *daemon) refreshStatus() {
	for _, us := range d.units {
		d.updateStatus(us)
	}
}

func (d *daemon) unit(n int) *unitState {
	for _, us := range d.units {
		if us.unit.Number == n {
			return us
		}
	}
	return nil
}

func (d *daemon) handleCommand(cmd web.Command) {
	log := d.log.WithFields(logrus.Fields{"unit": cmd.Unit, "command": cmd.Type})
	us := d.unit(cmd.Unit)
	if us == nil {
		log.Warn("command for unknown unit")
		return
	}
	s := us.unit.Sensor

	switch cmd.Type {
	case web.CommandCalibrationBegin:
		if s.Calibrating() {
			log.Warn("calibration already in progress")
			return
		}
		s.BeginCalibration()
		log.Info("calibration started")

	case web.CommandCalibrationEnd:
		if !s.Calibrating() {
			log.Warn("calibration not in progress")
			return
		}
		cal := s.EndCalibration()
		log.WithField("calibration", cal).Info("calibration finished")

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := d.store.Save(ctx, cmd.Unit, cal)
		cancel()
		if err != nil {
			log.WithError(err).Error("save calibration failed")
		}
		if err := d.publisher.PublishCalibration(cmd.Unit, cal, d.now()); err != nil {
			log.WithError(err).Warn("publish calibration failed")
		}

	default:
		log.Warn("unknown command")
	}
	d.updateStatus(us)
}

// checkHeartbeat publishes a status snapshot every heartbeat interval and
// logs per-unit event counts for units that have a baseline.
func (d *daemon) checkHeartbeat(t time.Time) {
	if d.heartbeat <= 0 || t.Sub(d.lastHeartbeat) < d.heartbeat {
		return
	}
	d.lastHeartbeat = t

	for _, us := range d.units {
		hb := us.detector.CheckHeartbeat(t, d.heartbeat)
		if hb == nil {
			continue
		}
		d.log.WithFields(logrus.Fields{
			"unit":        us.unit.Number,
			"uptime":      hb.Uptime.Truncate(time.Second),
			"pullback":    hb.Counts.Pullback,
			"release":     hb.Counts.Release,
			"rest":        hb.Counts.Rest,
			"no_readings": us.noReadings,
		}).Info("heartbeat")
	}

	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.log.WithError(err).Warn("heartbeat publish failed")
	}
}

func (d *daemon) shutdown(reason string) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.log.WithError(err).Warn("publish shutdown event failed")
	} else {
		d.log.Info("published shutdown event")
	}
}
