package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CapturesActive  prometheus.Gauge
	CapturesTotal   *prometheus.CounterVec
	TranscoderKills prometheus.Counter

	RecognitionsTotal   *prometheus.CounterVec
	RecognitionDuration prometheus.Histogram

	CommandsTotal *prometheus.CounterVec

	PacketsDropped prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "soundboard"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CapturesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "captures_active",
			Help:      "Captures currently running",
		}),
		CapturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Captures by how they ended",
		}, []string{"result"}),
		TranscoderKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcoder_kills_total",
			Help:      "Transcoders killed after the grace period",
		}),
		RecognitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Recognition submissions by outcome",
		}, []string{"outcome"}),
		RecognitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_duration_seconds",
			Help:      "Duration of recognition calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10},
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by name",
		}, []string{"command"}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Voice packets dropped because a capture fell behind",
		}),
	}

	registry.MustRegister(
		m.CapturesActive,
		m.CapturesTotal,
		m.TranscoderKills,
		m.RecognitionsTotal,
		m.RecognitionDuration,
		m.CommandsTotal,
		m.PacketsDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordCaptureStart() {
	if m == nil {
		return
	}
	m.CapturesActive.Inc()
}

func (m *Metrics) RecordCaptureEnd(result string, killed bool) {
	if m == nil {
		return
	}
	m.CapturesActive.Dec()
	m.CapturesTotal.WithLabelValues(result).Inc()
	if killed {
		m.TranscoderKills.Inc()
	}
}

func (m *Metrics) RecordCaptureFailure() {
	if m == nil {
		return
	}
	m.CapturesTotal.WithLabelValues("spawn_failed").Inc()
}

func (m *Metrics) RecordRecognition(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RecognitionsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.RecognitionDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) RecordDroppedPacket() {
	if m == nil {
		return
	}
	m.PacketsDropped.Inc()
}
