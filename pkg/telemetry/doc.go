// Package telemetry wires observability into nodeflow: structured logging with zerolog,
// tracing with OpenTelemetry, Prometheus metrics and a mutation event publisher.
//
// Metrics implements engine.Recorder and EventPublisher implements engine.EventSink, so a
// Telemetry instance plugs straight into an engine:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	e := engine.New(g, registry, tel.EngineOptions())
//
// # Metrics
//
// With metrics enabled the engine reports, under the configured namespace:
//
//	queries_total{query,result}           memoized queries, result is hit or miss
//	invalidations_total{reason}           mutations that evicted cache entries
//	evicted_entries_total{reason}         entries evicted by those mutations
//	mutations_total{operation,status}     status is ok or the engine error kind
//	rejected_connections_total{reason}    loop or type_mismatch
//	evaluation_duration_seconds           whole-graph evaluations
//	nodes, mismatches                     gauges from the last evaluation
//
// StartMetricsServer exposes them over HTTP.
//
// # Events
//
// The publisher delivers synchronously unless EnableAsync is set, in which case events are
// buffered and delivered in batches of MaxBatchSize or every FlushInterval. Subscribers must not
// call back into the engine when delivery is synchronous, since the engine publishes while
// holding its lock.
package telemetry
