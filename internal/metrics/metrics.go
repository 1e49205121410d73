// Package metrics exports sensor and daemon metrics for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// Read results.
const (
	ResultOK        = "ok"
	ResultNoReading = "no_reading"
	ResultError     = "error"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Reads              *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	Position           *prometheus.GaugeVec
	Integration        *prometheus.GaugeVec
	InvalidTransitions *prometheus.GaugeVec
	FiringEvents       *prometheus.CounterVec
	MQTTConnected      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plunger_reads_total",
			Help: "Sensor reads by result.",
		}, []string{"unit", "result"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plunger_scan_duration_seconds",
			Help:    "Time to acquire and process one raw reading.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}, []string{"unit"}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plunger_position",
			Help: "Last normalized position, 0-65535.",
		}, []string{"unit"}),
		Integration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plunger_integration_extension_seconds",
			Help: "Auto-exposure integration extension of imaging sensors.",
		}, []string{"unit"}),
		InvalidTransitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plunger_quadrature_invalid_transitions",
			Help: "Invalid quadrature phase transitions since start.",
		}, []string{"unit"}),
		FiringEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plunger_firing_events_total",
			Help: "Firing events by type.",
		}, []string{"unit", "type"}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plunger_mqtt_connected",
			Help: "1 when the MQTT client is connected.",
		}),
	}
	m.registry.MustRegister(
		m.Reads,
		m.ScanDuration,
		m.Position,
		m.Integration,
		m.InvalidTransitions,
		m.FiringEvents,
		m.MQTTConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRead records one read cycle and the time that read took.
func (m *Metrics) ObserveRead(unit int, r plunger.Reading, err error, took time.Duration) {
	u := strconv.Itoa(unit)
	switch {
	case err == nil:
		m.Reads.WithLabelValues(u, ResultOK).Inc()
		m.Position.WithLabelValues(u).Set(float64(r.Position))
	case errors.Is(err, plunger.ErrNoReading):
		m.Reads.WithLabelValues(u, ResultNoReading).Inc()
	default:
		m.Reads.WithLabelValues(u, ResultError).Inc()
	}
	m.ScanDuration.WithLabelValues(u).Observe(took.Seconds())
}

// ObserveEvent counts one firing event.
func (m *Metrics) ObserveEvent(unit int, eventType string) {
	m.FiringEvents.WithLabelValues(strconv.Itoa(unit), eventType).Inc()
}

// SetIntegration records an imaging sensor's exposure extension.
func (m *Metrics) SetIntegration(unit int, d time.Duration) {
	m.Integration.WithLabelValues(strconv.Itoa(unit)).Set(d.Seconds())
}

// SetInvalidTransitions records a quadrature sensor's invalid transition count.
func (m *Metrics) SetInvalidTransitions(unit int, n uint64) {
	m.InvalidTransitions.WithLabelValues(strconv.Itoa(unit)).Set(float64(n))
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.MQTTConnected.Set(v)
}
