package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments of the chat server. Each instance
// owns its registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	StreamEvents    *prometheus.CounterVec
	BackendRetries  *prometheus.CounterVec
	StreamOutcomes  *prometheus.CounterVec
	PersistFailures prometheus.Counter
	ResponseTime    prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events relayed to chat clients by event name.",
		}, []string{"event"}),
		BackendRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Generation backend calls reissued, by reason.",
		}, []string{"reason"}),
		StreamOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_outcomes_total",
			Help:      "Finished chat streams by outcome.",
		}, []string{"outcome"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_persist_failures_total",
			Help:      "Exchanges that could not be written after streaming.",
		}),
		ResponseTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_ms",
			Help:      "End-to-end chat response time in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
	}
}

// The methods below are no-ops on a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveRetry(reason string) {
	if m == nil {
		return
	}
	m.BackendRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StreamOutcomes.WithLabelValues(outcome).Inc()
	m.ResponseTime.Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObservePersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
