package console

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is optional everywhere it is accepted. All methods are no-ops on a
// nil receiver.
type Metrics struct {
	submissions   *prometheus.CounterVec
	connections   *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	terminal      *prometheus.CounterVec
	lines         *prometheus.CounterVec
	heartbeats    prometheus.Counter
	activeStreams *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "form",
			Name:      "submissions_total",
			Help:      "Generation form submissions by outcome.",
		}, []string{"outcome"}),
		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "stream",
			Name:      "connections_total",
			Help:      "Log stream connection attempts by transport and result.",
		}, []string{"transport", "result"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Scheduled log stream reconnects.",
		}, []string{"transport"}),
		terminal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "stream",
			Name:      "outcomes_total",
			Help:      "Terminal log stream outcomes.",
		}, []string{"state"}),
		lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "logs",
			Name:      "lines_total",
			Help:      "Rendered log lines by class.",
		}, []string{"class"}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "stream",
			Name:      "heartbeats_total",
			Help:      "Heartbeat payloads received and dropped.",
		}),
		activeStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "blogconsole",
			Subsystem: "stream",
			Name:      "active",
			Help:      "Open log stream connections by transport.",
		}, []string{"transport"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogconsole",
			Subsystem: "client",
			Name:      "http_requests_total",
			Help:      "HTTP requests sent to the automation server.",
		}, []string{"code", "method"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blogconsole",
			Subsystem: "client",
			Name:      "http_request_duration_seconds",
			Help:      "Request duration against the automation server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// InstrumentRoundTripper wraps next so every server call is counted and timed.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if m == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(m.httpRequests,
		promhttp.InstrumentRoundTripperDuration(m.httpLatency, next))
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport, "opened").Inc()
	m.activeStreams.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnectionClosed(transport string) {
	if m == nil {
		return
	}
	m.activeStreams.WithLabelValues(transport).Dec()
}

func (m *Metrics) ConnectionFailed(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport, "failed").Inc()
}

func (m *Metrics) Reconnect(transport string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(transport).Inc()
}

func (m *Metrics) Terminal(state StreamState) {
	if m == nil {
		return
	}
	m.terminal.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

func (m *Metrics) Line(class LineClass) {
	if m == nil {
		return
	}
	label := string(class)
	if label == "" {
		label = "plain"
	}
	m.lines.WithLabelValues(label).Inc()
}
