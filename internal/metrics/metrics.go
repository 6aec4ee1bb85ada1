// Package metrics exposes Prometheus collectors for the privileged tick.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autopilot"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	tickDuration    prometheus.Histogram
	cachedEntities  prometheus.Gauge
	localAgent      prometheus.Gauge
	refreshFailures prometheus.Counter
	dispatched      *prometheus.CounterVec
	failed          *prometheus.CounterVec
	engineRunning   *prometheus.GaugeVec
}

// TickSample is what one privileged tick reports.
type TickSample struct {
	Duration      time.Duration
	Entities      int
	RefreshFailed bool
	LocalAgent    bool
	Executed      []string
	Failed        []string
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Privileged ticks executed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a privileged tick.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cachedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_entities",
			Help:      "Entities in the cache after the last refresh.",
		}),
		localAgent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_agent_present",
			Help:      "1 when the local agent is cached.",
		}),
		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_failures_total",
			Help:      "Cache refreshes that failed to enumerate entities.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dispatched_total",
			Help:      "Mailbox requests handed to the action oracle.",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_failed_total",
			Help:      "Mailbox requests the action oracle reported as failed.",
		}, []string{"kind"}),
		engineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_running",
			Help:      "1 while the engine of the given kind has a live worker.",
		}, []string{"engine"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.ticks,
		m.tickDuration,
		m.cachedEntities,
		m.localAgent,
		m.refreshFailures,
		m.dispatched,
		m.failed,
		m.engineRunning,
	)
	return m
}

// ObserveTick records one privileged tick.
func (m *Metrics) ObserveTick(s TickSample) {
	m.ticks.Inc()
	m.tickDuration.Observe(s.Duration.Seconds())
	m.cachedEntities.Set(float64(s.Entities))
	if s.RefreshFailed {
		m.refreshFailures.Inc()
	}
	if s.LocalAgent {
		m.localAgent.Set(1)
	} else {
		m.localAgent.Set(0)
	}
	for _, k := range s.Executed {
		m.dispatched.WithLabelValues(k).Inc()
	}
	for _, k := range s.Failed {
		m.failed.WithLabelValues(k).Inc()
	}
}

// SetEngineRunning updates the engine gauge.
func (m *Metrics) SetEngineRunning(engine string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	m.engineRunning.WithLabelValues(engine).Set(v)
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
