// Package metrics exposes Prometheus metrics for the chat connection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection holds the connection and chat metrics.
// A nil *Connection is valid and records nothing.
type Connection struct {
	registry *prometheus.Registry

	// Connection lifecycle
	Attempts     prometheus.Counter
	Opens        prometheus.Counter
	Closes       *prometheus.CounterVec
	Terminations prometheus.Counter
	State        prometheus.Gauge
	RetryDelay   prometheus.Histogram

	// Traffic
	MessagesIn   prometheus.Counter
	MessagesOut  prometheus.Counter
	SendsDropped prometheus.Counter

	// Health checks
	HealthChecks *prometheus.CounterVec
}

// New creates metrics on a private registry.
func New() *Connection {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Connection{
		registry: reg,

		Attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_connect_attempts_total",
			Help: "Total number of WebSocket dial attempts",
		}),
		Opens: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_opens_total",
			Help: "Total number of WebSocket connections opened",
		}),
		Closes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_ws_closes_total",
			Help: "Total number of unsolicited WebSocket closes by close code",
		}, []string{"code"}),
		Terminations: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_terminations_total",
			Help: "Times reconnection gave up after exhausting attempts",
		}),
		State: f.NewGauge(prometheus.GaugeOpts{
			Name: "aide_ws_state",
			Help: "Current connection state (0 idle, 1 connecting, 2 open, 3 closing, 4 retry_wait, 5 terminated)",
		}),
		RetryDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aide_ws_retry_delay_seconds",
			Help:    "Scheduled reconnect delay in seconds",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
		MessagesIn: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_messages_received_total",
			Help: "Total number of frames received",
		}),
		MessagesOut: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_messages_sent_total",
			Help: "Total number of frames sent",
		}),
		SendsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "aide_ws_sends_dropped_total",
			Help: "Total number of outbound frames dropped while not connected",
		}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_health_checks_total",
			Help: "Total number of server health checks by result",
		}, []string{"result"}),
	}
}

// Registry returns the registry backing these metrics.
func (m *Connection) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Connection) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Connection) AttemptStarted() {
	if m != nil {
		m.Attempts.Inc()
	}
}

func (m *Connection) Opened() {
	if m != nil {
		m.Opens.Inc()
	}
}

func (m *Connection) Closed(code string) {
	if m != nil {
		m.Closes.WithLabelValues(code).Inc()
	}
}

func (m *Connection) Terminated() {
	if m != nil {
		m.Terminations.Inc()
	}
}

func (m *Connection) SetState(state int) {
	if m != nil {
		m.State.Set(float64(state))
	}
}

func (m *Connection) RetryScheduled(delay time.Duration) {
	if m != nil {
		m.RetryDelay.Observe(delay.Seconds())
	}
}

func (m *Connection) MessageReceived() {
	if m != nil {
		m.MessagesIn.Inc()
	}
}

func (m *Connection) MessageSent() {
	if m != nil {
		m.MessagesOut.Inc()
	}
}

func (m *Connection) SendDropped() {
	if m != nil {
		m.SendsDropped.Inc()
	}
}

// HealthCheck records one health check outcome.
func (m *Connection) HealthCheck(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}
