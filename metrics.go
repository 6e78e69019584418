package live

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a voice session. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectsTotal     *prometheus.CounterVec
	DisconnectsTotal  *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	KeepalivesTotal   prometheus.Counter
	FramesTotal       *prometheus.CounterVec
	AudioChunksTotal  *prometheus.CounterVec
	ToolCallsTotal    *prometheus.CounterVec
	SessionActive     prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gemini_live"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ConnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connects_total",
				Help:      "Session connect attempts by result",
			},
			[]string{"result"},
		),
		DisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Session disconnects by reason",
			},
			[]string{"reason"},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnect_attempts_total",
				Help:      "Automatic reconnect attempts made by the supervisor",
			},
		),
		KeepalivesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keepalives_total",
				Help:      "Silent keepalive frames written",
			},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_received_total",
				Help:      "Inbound frames by kind",
			},
			[]string{"kind"},
		),
		AudioChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_chunks_total",
				Help:      "Audio chunks by direction",
			},
			[]string{"direction"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Function calls executed by tool name",
			},
			[]string{"tool"},
		),
		SessionActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_active",
				Help:      "1 while a session is active",
			},
		),
	}

	registry.MustRegister(
		m.ConnectsTotal,
		m.DisconnectsTotal,
		m.ReconnectAttempts,
		m.KeepalivesTotal,
		m.FramesTotal,
		m.AudioChunksTotal,
		m.ToolCallsTotal,
		m.SessionActive,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) connect(result string) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.SessionActive.Set(1)
	}
}

func (m *Metrics) disconnect(reason string) {
	if m == nil {
		return
	}
	m.DisconnectsTotal.WithLabelValues(reason).Inc()
	m.SessionActive.Set(0)
}

func (m *Metrics) reconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) keepalive() {
	if m == nil {
		return
	}
	m.KeepalivesTotal.Inc()
}

func (m *Metrics) frame(kind string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) audioChunk(direction string) {
	if m == nil {
		return
	}
	m.AudioChunksTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) toolCall(name string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(name).Inc()
}
