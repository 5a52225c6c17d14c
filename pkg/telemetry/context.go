package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/nodeflow/pkg/engine"
)

// Telemetry bundles logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	server *http.Server
}

type telemetryContextKey struct{}

// NewTelemetry creates a telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// EngineOptions returns engine options that report into this telemetry instance.
func (t *Telemetry) EngineOptions() engine.Options {
	return engine.Options{
		Logger:  t.Logger.NewComponentLogger("engine").Zerolog(),
		Metrics: t.Metrics,
		Events:  t.Events,
		Tracer:  t.Tracer.Tracer(),
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() {
	t.server = t.Metrics.StartMetricsServer()
}

// Shutdown stops every component, in reverse order of initialization.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.server != nil {
		errs = append(errs, t.server.Shutdown(ctx))
	}
	errs = append(errs, t.Events.Shutdown(ctx), t.Tracer.Shutdown(ctx))
	return errors.Join(errs...)
}

// Operation is an instrumented unit of work: a span, a logger carrying the trace ids and a
// start time.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger

	name  string
	start time.Time
}

// StartOperation begins an instrumented operation. Without telemetry in ctx the span is a no-op
// and the logger is the one found in ctx.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{name: name, start: time.Now()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		op.Ctx = ctx
		op.Span = trace.SpanFromContext(ctx)
		op.Logger = FromContext(ctx).WithField("operation", name)
		return op
	}

	op.Ctx, op.Span = tel.Tracer.StartSpan(ctx, name, attrs...)
	op.Logger = tel.Logger.WithField("operation", name)
	if sc := op.Span.SpanContext(); sc.IsValid() {
		op.Logger = op.Logger.
			WithField("trace_id", sc.TraceID().String()).
			WithField("span_id", sc.SpanID().String())
	}
	op.Ctx = op.Logger.WithContext(op.Ctx)
	return op
}

// Duration returns the time since the operation started.
func (o *Operation) Duration() time.Duration {
	return time.Since(o.start)
}

// End finishes the operation, recording success or failure on its span.
func (o *Operation) End(err error) {
	if err != nil {
		RecordError(o.Span, err)
		o.Span.SetAttributes(AttrErrorKind.String(mutationStatus(err)))
		o.Logger.WithError(err).Debugf("%s failed after %s", o.name, o.Duration())
	} else {
		RecordSuccess(o.Span)
	}
	o.Span.End()
}
