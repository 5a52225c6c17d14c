package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/nodeflow/pkg/engine"
)

// Metrics provides Prometheus metrics for the engine. It implements engine.Recorder.
type Metrics struct {
	config MetricsConfig

	queries            *prometheus.CounterVec
	invalidations      *prometheus.CounterVec
	evictedEntries     *prometheus.CounterVec
	mutations          *prometheus.CounterVec
	rejectedConns      *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	nodes              prometheus.Gauge
	mismatches         prometheus.Gauge

	registry *prometheus.Registry
}

var _ engine.Recorder = (*Metrics)(nil)

// NewMetrics creates a metrics collector. A disabled config yields a collector whose recording
// methods do nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of memoized queries by query kind and cache result",
			},
			[]string{"query", "result"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Total number of cache invalidations by reason",
			},
			[]string{"reason"},
		),
		evictedEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evicted_entries_total",
				Help:      "Total number of cache entries evicted by reason",
			},
			[]string{"reason"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Total number of graph mutations by operation and status",
			},
			[]string{"operation", "status"},
		),
		rejectedConns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_connections_total",
				Help:      "Total number of refused connections by reason",
			},
			[]string{"reason"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of whole-graph evaluations in seconds",
				Buckets:   buckets,
			},
		),
		nodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nodes",
				Help:      "Number of nodes in the last evaluated graph",
			},
		),
		mismatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mismatches",
				Help:      "Number of mismatched port types in the last evaluation",
			},
		),
	}

	registry.MustRegister(
		m.queries,
		m.invalidations,
		m.evictedEntries,
		m.mutations,
		m.rejectedConns,
		m.evaluationDuration,
		m.nodes,
		m.mismatches,
	)
	return m, nil
}

// RecordQuery counts one memoized query.
func (m *Metrics) RecordQuery(query string, hit bool) {
	if m.queries == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queries.WithLabelValues(query, result).Inc()
}

// RecordInvalidation counts one invalidation and the entries it evicted.
func (m *Metrics) RecordInvalidation(reason string, entries int) {
	if m.invalidations == nil {
		return
	}
	m.invalidations.WithLabelValues(reason).Inc()
	m.evictedEntries.WithLabelValues(reason).Add(float64(entries))
}

// RecordMutation counts a mutation. The status is "ok" or the engine error kind.
func (m *Metrics) RecordMutation(operation string, err error) {
	if m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(operation, mutationStatus(err)).Inc()
}

// RecordRejectedConnection counts a refused connection.
func (m *Metrics) RecordRejectedConnection(reason string) {
	if m.rejectedConns == nil {
		return
	}
	m.rejectedConns.WithLabelValues(reason).Inc()
}

// RecordEvaluation records a whole-graph evaluation.
func (m *Metrics) RecordEvaluation(duration time.Duration, nodes, mismatches int) {
	if m.evaluationDuration == nil {
		return
	}
	m.evaluationDuration.Observe(duration.Seconds())
	m.nodes.Set(float64(nodes))
	m.mismatches.Set(float64(mismatches))
}

func mutationStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		return string(engineErr.Kind)
	}
	return "error"
}

// Registry returns the Prometheus registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint in the background and returns the server so
// the caller can shut it down. It returns nil when metrics are disabled.
func (m *Metrics) StartMetricsServer() *http.Server {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()
	return server
}
