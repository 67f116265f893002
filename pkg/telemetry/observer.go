package telemetry

import (
	"context"
	"time"

	"github.com/checkupjs/checkup/pkg/engine"
)

// TaskObserver feeds runner notifications into spans, metrics, events and
// logs. It implements engine.TaskObserver.
type TaskObserver struct {
	runID   string
	tracer  *Tracer
	metrics *Metrics
	events  *EventPublisher
	logger  *Logger
}

var _ engine.TaskObserver = (*TaskObserver)(nil)

// NewTaskObserver creates an observer for one run. Nil components are skipped.
func NewTaskObserver(runID string, tracer *Tracer, metrics *Metrics, events *EventPublisher, logger *Logger) *TaskObserver {
	if logger == nil {
		logger = NopLogger()
	}
	return &TaskObserver{
		runID:   runID,
		tracer:  tracer,
		metrics: metrics,
		events:  events,
		logger:  logger.NewComponentLogger("task-observer").WithRunID(runID),
	}
}

// TaskStarted opens a task span and counts the task as in flight.
func (o *TaskObserver) TaskStarted(ctx context.Context, taskName string) context.Context {
	if o.tracer != nil {
		ctx, _ = o.tracer.StartTaskSpan(ctx, taskName)
	}
	o.metrics.TaskStarted()
	o.events.PublishTaskStarted(o.runID, taskName)
	o.logger.WithTask(taskName).Debug("Task started")
	return ctx
}

// TaskFinished closes the task span and records the outcome.
func (o *TaskObserver) TaskFinished(ctx context.Context, taskName string, duration time.Duration, err error) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}

	if o.tracer != nil {
		span := spanFromContext(ctx)
		span.SetAttributes(AttrTaskStatus.String(status))
		EndSpan(span, err)
	}

	o.metrics.RecordTaskExecution(taskName, status, duration)

	logger := o.logger.WithTask(taskName).WithField("duration_ms", duration.Milliseconds())
	if err != nil {
		o.events.PublishTaskFailed(o.runID, taskName, err.Error())
		logger.WithError(err).Warn("Task failed")
		return
	}
	o.events.PublishTaskCompleted(o.runID, taskName, duration)
	logger.Debug("Task completed")
}
