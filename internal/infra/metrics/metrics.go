package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
	OutcomeError      = "error"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer       prometheus.Gatherer
	decisions      *prometheus.CounterVec
	remoteErrors   *prometheus.CounterVec
	remoteInFlight prometheus.Gauge
	sessionsActive prometheus.Gauge
}

func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quota",
			Name:      "decisions_total",
			Help:      "Quota and rate limit decisions by component and outcome.",
		}, []string{"component", "outcome"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quota",
			Name:      "remote_call_errors_total",
			Help:      "Failed calls to the counter backend by operation.",
		}, []string{"op"}),
		remoteInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quota",
			Name:      "remote_calls_in_flight",
			Help:      "Counter backend calls currently waiting for a response.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quota",
			Name:      "sessions_active",
			Help:      "Live per-user engine sessions.",
		}),
	}

	reg.MustRegister(m.decisions, m.remoteErrors, m.remoteInFlight, m.sessionsActive)
	return m
}

func (m *Metrics) Decision(component, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) RemoteError(op string) {
	if m == nil {
		return
	}
	m.remoteErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RemoteStarted() {
	if m == nil {
		return
	}
	m.remoteInFlight.Inc()
}

func (m *Metrics) RemoteFinished() {
	if m == nil {
		return
	}
	m.remoteInFlight.Dec()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
