package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/checkupjs/checkup/pkg/engine"
)

// Telemetry combines logging, tracing, metrics, and events for a process.
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

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that records nothing.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Events.Enabled = false
	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	metrics, _ := NewMetrics(cfg.Metrics)
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}
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

// Shutdown flushes pending spans and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// TaskObserver returns an observer bound to runID for the task runner.
func (t *Telemetry) TaskObserver(runID string) *TaskObserver {
	return NewTaskObserver(runID, t.Tracer, t.Metrics, t.Events, t.Logger)
}

// RunScope tracks one run: its root span, timer and logger.
type RunScope struct {
	Ctx    context.Context
	RunID  string
	Logger *Logger

	span  trace.Span
	timer *Timer
	tel   *Telemetry
}

// StartRun opens the run span, counts the run, and publishes run.started.
func (t *Telemetry) StartRun(ctx context.Context, runID, cwd string) *RunScope {
	spanCtx, span := t.Tracer.StartRunSpan(ctx, runID, cwd)
	logger := t.Logger.WithRunID(runID)
	spanCtx = logger.WithContext(spanCtx)

	t.Metrics.RecordRunStarted()
	t.Events.PublishRunStarted(runID, cwd)

	return &RunScope{
		Ctx:    spanCtx,
		RunID:  runID,
		Logger: logger,
		span:   span,
		timer:  NewTimer(),
		tel:    t,
	}
}

// Phase starts a child span of the run for an orchestration phase. The
// returned function ends it with the given error.
func (s *RunScope) Phase(phase string) (context.Context, func(error)) {
	ctx, span := s.tel.Tracer.StartPhaseSpan(s.Ctx, phase)
	return ctx, func(err error) { EndSpan(span, err) }
}

// End closes the run span and records the final status. A non-nil err is an
// orchestration failure and is counted by its checkup error kind.
func (s *RunScope) End(status string, err error) {
	duration := s.timer.Duration()
	s.span.SetAttributes(AttrRunStatus.String(status))
	EndSpan(s.span, err)

	s.tel.Metrics.RecordRunCompleted(status, duration)

	if err != nil {
		s.tel.Metrics.RecordError(string(engine.AsCheckupError(err).Kind))
		s.tel.Events.PublishRunFailed(s.RunID, err.Error())
		s.Logger.WithError(err).Warn("Run failed")
		return
	}

	s.tel.Events.PublishRunCompleted(s.RunID, status, duration)
	s.Logger.WithField("status", status).WithField("duration_ms", duration.Milliseconds()).Info("Run completed")
}

func spanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
