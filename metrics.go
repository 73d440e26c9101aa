package neopaths

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "neopaths"

// Metrics holds the Prometheus collectors of the search layer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Queries counts searches by strategy (regulation, deep, simple, lookup) and
	// status (success, error).
	Queries *prometheus.CounterVec

	// QueryDuration measures end-to-end search latency, retries included.
	QueryDuration *prometheus.HistogramVec

	// Retries counts retried attempts by error kind.
	Retries *prometheus.CounterVec

	// Reconnects counts session replacements.
	Reconnects prometheus.Counter

	// MalformedEdges counts edges dropped because an attribute failed to decode.
	MalformedEdges prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Path searches by strategy and outcome.",
		}, []string{"strategy", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Path search latency including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"strategy"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retries_total",
			Help:      "Retried graph operations by error kind.",
		}, []string{"kind"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnects_total",
			Help:      "Graph session replacements.",
		}),
		MalformedEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_edges_total",
			Help:      "Edges dropped from results because an attribute failed to decode.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Queries, m.QueryDuration, m.Retries, m.Reconnects, m.MalformedEdges)
	}
	return m
}

func (m *Metrics) observeQuery(strategy string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Queries.WithLabelValues(strategy, status).Inc()
	m.QueryDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retried(kind ErrorKind) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) malformed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.MalformedEdges.Add(float64(n))
}
