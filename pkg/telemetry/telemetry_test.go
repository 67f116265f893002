package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/checkupjs/checkup/pkg/engine"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "development", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "zipkin" }, wantErr: true},
		{name: "sampling above one", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "metrics without namespace", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Namespace = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr", Writer: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.NewComponentLogger("session").WithRunID("run-1").WithTask("a/b").Info("hello")

	out := buf.String()
	for _, want := range []string{`"component":"session"`, `"run_id":"run-1"`, `"task":"a/b"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %s", out, want)
		}
	}
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: "stderr", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFromContext_Nop(t *testing.T) {
	// Must not panic without a logger in the context.
	FromContext(context.Background()).Info("dropped")
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordRunStarted()
	m.RecordTaskExecution("a/b", "succeeded", time.Second)
	m.RecordAction("x")

	if m.Enabled() {
		t.Error("expected disabled metrics")
	}
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err == nil {
		t.Error("expected an error writing disabled metrics")
	}
}

func newEnabledMetrics(t *testing.T) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func TestMetrics_Record(t *testing.T) {
	m := newEnabledMetrics(t)

	m.RecordRunStarted()
	m.TaskStarted()
	m.TaskStarted()
	m.RecordTaskExecution("a/b", "succeeded", 10*time.Millisecond)
	m.RecordTaskExecution("a/c", "failed", 10*time.Millisecond)
	m.RecordAction("reduce-eslint-disable-usages")
	m.RecordRunCompleted("partial", time.Second)
	m.RecordError("TasksNotFound")

	if got := testutil.ToFloat64(m.runsStarted); got != 1 {
		t.Errorf("runs started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasksExecuted.WithLabelValues("a/c", "failed")); got != 1 {
		t.Errorf("failed a/c = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeTasks); got != 0 {
		t.Errorf("active tasks = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.runsCompleted.WithLabelValues("partial")); got != 1 {
		t.Errorf("partial runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsByKind.WithLabelValues("TasksNotFound")); got != 1 {
		t.Errorf("TasksNotFound errors = %v, want 1", got)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := newEnabledMetrics(t)
	m.RecordAction("reduce-eslint-disable-usages")

	path := filepath.Join(t.TempDir(), "checkup.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `checkup_actions_emitted_total{action="reduce-eslint-disable-usages"} 1`
	if !strings.Contains(string(data), want) {
		t.Errorf("textfile missing %q:\n%s", want, data)
	}
}

func TestEventPublisher(t *testing.T) {
	events := NewEventPublisher(EventsConfig{Enabled: true})
	fixed := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	events.now = func() time.Time { return fixed }

	var all, forTask []string
	events.Subscribe(func(e Event) { all = append(all, e.Type) }, nil)
	events.Subscribe(func(e Event) {
		forTask = append(forTask, e.Type)
		if e.ID == "" || !e.Timestamp.Equal(fixed) {
			t.Errorf("event not stamped: %+v", e)
		}
	}, FilterByTask("a/b"))

	events.PublishRunStarted("run-1", "/p")
	events.PublishTaskStarted("run-1", "a/b")
	events.PublishTaskCompleted("run-1", "a/b", time.Millisecond)
	events.PublishTaskFailed("run-1", "a/c", "boom")
	events.PublishRunCompleted("run-1", "partial", time.Second)

	wantAll := []string{EventTypeRunStarted, EventTypeTaskStarted, EventTypeTaskCompleted, EventTypeTaskFailed, EventTypeRunCompleted}
	if diff := cmp.Diff(wantAll, all); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{EventTypeTaskStarted, EventTypeTaskCompleted}, forTask); diff != "" {
		t.Errorf("task events mismatch (-want +got):\n%s", diff)
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	events := NewEventPublisher(EventsConfig{Enabled: false})
	called := false
	events.Subscribe(func(Event) { called = true }, nil)
	events.PublishRunStarted("run-1", "/p")

	var nilPublisher *EventPublisher
	nilPublisher.PublishRunStarted("run-1", "/p")

	if called {
		t.Error("disabled publisher delivered an event")
	}
}

func TestEventPublisher_GlobalFilter(t *testing.T) {
	events := NewEventPublisher(EventsConfig{Enabled: true})
	events.AddFilter(FilterByRunID("keep"))

	var got []string
	events.Subscribe(func(e Event) { got = append(got, e.RunID) }, nil)
	events.PublishRunStarted("drop", "/p")
	events.PublishRunStarted("keep", "/p")

	if diff := cmp.Diff([]string{"keep"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func newRecordingTelemetry(t *testing.T) (*Telemetry, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracerWithExporter(exporter, "checkup", "test")
	if err != nil {
		t.Fatalf("NewTracerWithExporter() error = %v", err)
	}
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  tracer,
		Metrics: newEnabledMetrics(t),
		Events:  NewEventPublisher(EventsConfig{Enabled: true}),
		Config:  DefaultConfig(),
	}, exporter
}

func TestTaskObserver(t *testing.T) {
	tel, exporter := newRecordingTelemetry(t)
	var events []string
	tel.Events.Subscribe(func(e Event) { events = append(events, e.Type+" "+e.TaskName) }, nil)

	run := tel.StartRun(context.Background(), "run-1", "/p")
	observer := tel.TaskObserver(run.RunID)

	okCtx := observer.TaskStarted(run.Ctx, "a/ok")
	observer.TaskFinished(okCtx, "a/ok", time.Millisecond, nil)
	failCtx := observer.TaskStarted(run.Ctx, "a/fail")
	observer.TaskFinished(failCtx, "a/fail", time.Millisecond, errors.New("boom"))

	run.End(string(engine.RunStatusPartial), nil)

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	root := spans[2]
	if root.Name != "checkup.run" {
		t.Errorf("last span = %s, want checkup.run", root.Name)
	}
	for _, s := range spans[:2] {
		if s.Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("span %s is not a child of the run span", s.Name)
		}
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("failed task span status = %v, want Error", spans[1].Status.Code)
	}

	if got := testutil.ToFloat64(tel.Metrics.tasksExecuted.WithLabelValues("a/fail", "failed")); got != 1 {
		t.Errorf("failed task metric = %v, want 1", got)
	}

	wantEvents := []string{
		"run.started ",
		"task.started a/ok",
		"task.completed a/ok",
		"task.started a/fail",
		"task.failed a/fail",
		"run.completed ",
	}
	if diff := cmp.Diff(wantEvents, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScope_EndWithError(t *testing.T) {
	tel, exporter := newRecordingTelemetry(t)

	run := tel.StartRun(context.Background(), "run-1", "/p")
	_, endPhase := run.Phase("config.load")
	err := engine.NewCheckupError(engine.ErrorKindTasksNotFound, engine.ErrorOptions{TaskNames: []string{"x/y"}})
	endPhase(err)
	run.End(string(engine.RunStatusFailed), err)

	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("TasksNotFound")); got != 1 {
		t.Errorf("error metric = %v, want 1", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 || spans[0].Name != "checkup.config.load" {
		t.Fatalf("unexpected spans %v", spans)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("run span status = %v, want Error", spans[1].Status.Code)
	}
}
