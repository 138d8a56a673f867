// Package metrics holds the Prometheus collectors for the recognition
// engine. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	FramesTotal        *prometheus.CounterVec
	IdentifyDuration   prometheus.Histogram
	FacesDetected      prometheus.Counter
	Identifications    *prometheus.CounterVec
	GateDecisions      *prometheus.CounterVec
	RegistryIdentities prometheus.Gauge
	RegistryReloads    *prometheus.CounterVec
	ActiveStreams      prometheus.Gauge
	MarkedToday        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a dedicated registry together with the Go
// and process collectors.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}
	m.initMetrics()

	cs := []prometheus.Collector{
		m.FramesTotal,
		m.IdentifyDuration,
		m.FacesDetected,
		m.Identifications,
		m.GateDecisions,
		m.RegistryIdentities,
		m.RegistryReloads,
		m.ActiveStreams,
		m.MarkedToday,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) initMetrics() {
	m.FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_stream_frames_total",
			Help: "Frames emitted by live streams, by outcome.",
		},
		[]string{"outcome"},
	)
	m.IdentifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollcall_identify_duration_seconds",
			Help:    "Time taken to identify all faces in one frame.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)
	m.FacesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_faces_detected_total",
			Help: "Faces detected across all identified frames.",
		},
	)
	m.Identifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_identifications_total",
			Help: "Identification results, by whether a known identity matched.",
		},
		[]string{"result"},
	)
	m.GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_attendance_decisions_total",
			Help: "Attendance gate decisions, by outcome.",
		},
		[]string{"outcome"},
	)
	m.RegistryIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_registry_identities",
			Help: "Identities in the current registry snapshot.",
		},
	)
	m.RegistryReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_registry_reloads_total",
			Help: "Registry reload attempts, by status.",
		},
		[]string{"status"},
	)
	m.ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_active_streams",
			Help: "Live stream sessions currently running.",
		},
	)
	m.MarkedToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_attendance_marked_today",
			Help: "Attendance records for the current day, refreshed periodically.",
		},
	)
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveIdentify records one pipeline run.
func (m *Metrics) ObserveIdentify(d time.Duration, known, unknown int) {
	if m == nil {
		return
	}
	m.IdentifyDuration.Observe(d.Seconds())
	m.FacesDetected.Add(float64(known + unknown))
	m.Identifications.WithLabelValues("known").Add(float64(known))
	m.Identifications.WithLabelValues("unknown").Add(float64(unknown))
}

func (m *Metrics) RecordFrame(outcome string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGateDecision(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRegistryReload(identities int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RegistryReloads.WithLabelValues("error").Inc()
		return
	}
	m.RegistryReloads.WithLabelValues("ok").Inc()
	m.RegistryIdentities.Set(float64(identities))
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

func (m *Metrics) SetMarkedToday(n int) {
	if m == nil {
		return
	}
	m.MarkedToday.Set(float64(n))
}
