package observability

import (
	"context"
	"errors"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ragloop"

// Metrics holds the Prometheus collectors fed by engine hooks.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	nodeVisits     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	nodeErrors     *prometheus.CounterVec
	routes         *prometheus.CounterVec
	loopTraversals *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of runs in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "visits_total",
			Help:      "Total node executions",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "duration_seconds",
			Help:      "Duration of node executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "errors_total",
			Help:      "Total failed node executions",
		}, []string{"node"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Routing decisions by router and label",
		}, []string{"router", "label"}),
		loopTraversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_traversals_total",
			Help:      "Traversals of bounded loop edges",
		}, []string{"loop"}),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runs, m.runDuration,
		m.nodeVisits, m.nodeDuration, m.nodeErrors,
		m.routes, m.loopTraversals,
	}
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			outcome := runOutcome(e)
			m.runs.WithLabelValues(outcome).Inc()
			m.runDuration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			node := string(e.NodeID)
			m.nodeVisits.WithLabelValues(node).Inc()
			m.nodeDuration.WithLabelValues(node).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeErrors.WithLabelValues(node).Inc()
			}
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			m.routes.WithLabelValues(string(e.Router), e.Label).Inc()
		},
		OnLoopTraversal: func(_ context.Context, e *domain.LoopEvent) {
			m.loopTraversals.WithLabelValues(string(e.Loop)).Inc()
		},
	}
}

// runOutcome maps a finished run to a bounded label set.
func runOutcome(e *domain.RunEvent) string {
	switch {
	case e.Err == nil:
		return string(e.Outcome)
	case errors.Is(e.Err, domain.ErrCancelled):
		return "cancelled"
	case errors.Is(e.Err, domain.ErrConfiguration):
		return "configuration_error"
	default:
		return "error"
	}
}
