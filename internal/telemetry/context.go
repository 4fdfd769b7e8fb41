package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging,
// tracing, metrics, and events for one pipeline process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
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

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	// The metrics server, if started, keeps serving until the process exits;
	// it is not torn down here.
	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented unit of work with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithRunContext creates a context enriched with run-specific telemetry
// (SPEC_FULL.md's Idle -> ... -> Done|Failed state machine runs as one run).
func WithRunContext(ctx context.Context, runID, planID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartRunSpan(ctx, runID, planID)

	logger := tel.Logger.WithRunID(runID).WithField("plan_id", planID)
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordRunStarted(planID)
	_ = tel.Events.PublishRunStarted(runID, planID)

	spanCtx = context.WithValue(spanCtx, runSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, runTimerKey{}, NewTimer())

	return spanCtx
}

// runSpanKey is the context key for run spans.
type runSpanKey struct{}

// runTimerKey is the context key for the run's elapsed-time timer.
type runTimerKey struct{}

// EndRunContext completes the run context, recording metrics and events.
func EndRunContext(ctx context.Context, runID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(runSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(runTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	tel.Metrics.RecordRunCompleted(status, duration)

	if err != nil {
		_ = tel.Events.PublishRunFailed(runID, err.Error())
	} else {
		_ = tel.Events.PublishRunCompleted(runID, status, duration)
	}
}

// WithOperationContext creates a context enriched with operation-specific telemetry.
func WithOperationContext(ctx context.Context, runID string, epoch int, operationID, resourceID, kind string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartOperationSpan(ctx, operationID, resourceID, kind)

	logger := tel.Logger.
		WithRunID(runID).
		WithEpoch(epoch).
		WithOperationID(operationID).
		WithResourceID(resourceID).
		WithField("kind", kind)
	spanCtx = logger.WithContext(spanCtx)

	_ = tel.Events.PublishOperationStarted(runID, operationID, resourceID, kind)

	spanCtx = context.WithValue(spanCtx, operationSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, operationTimerKey{}, NewTimer())

	return spanCtx
}

// operationSpanKey is the context key for operation spans.
type operationSpanKey struct{}

// operationTimerKey is the context key for operation timers.
type operationTimerKey struct{}

// EndOperationContext completes the operation context, recording metrics and events.
func EndOperationContext(ctx context.Context, runID, operationID, resourceID, kind, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(operationSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(operationTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	resourceType := "unknown" // the orchestrator should pass the resource kind through explicitly
	tel.Metrics.RecordOperationExecution(kind, status, duration, resourceType)

	if err != nil {
		_ = tel.Events.PublishOperationFailed(runID, operationID, resourceID, err.Error())
	} else {
		_ = tel.Events.PublishOperationCompleted(runID, operationID, resourceID, duration)
	}
}

// WithExtensionContext creates a context enriched with extension-provider telemetry.
func WithExtensionContext(ctx context.Context, module, version string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	logger := tel.Logger.WithExtension(module, version)
	return logger.WithContext(ctx)
}

// RecordExtensionCall records an extension-provider call with metrics and tracing.
func RecordExtensionCall(ctx context.Context, module, verb string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartExtensionSpan(ctx, module, verb)
		defer span.End()
	}

	timer := NewTimer()

	err := fn()

	if tel != nil {
		duration := timer.Duration()
		tel.Metrics.RecordExtensionCall(module, verb, duration)
		if err != nil {
			tel.Metrics.RecordExtensionError(module, verb)
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
