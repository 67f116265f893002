// Package telemetry provides observability instrumentation for checkup runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and a synchronous run event publisher.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	run := tel.StartRun(ctx, runID, cwd)
//	runner := engine.NewRunner(engine.RunnerOptions{
//	    Logger:   run.Logger.Zerolog(),
//	    Observer: tel.TaskObserver(runID),
//	})
//	...
//	run.End(string(status), err)
//
// # Tracing
//
// A run produces a "checkup.run" root span with one "checkup.task" child
// per task and "checkup.<phase>" children for orchestration phases. The
// stdout exporter writes to stderr so reports on stdout stay parseable.
//
// # Metrics
//
// Metrics live in a private registry. One-shot runs write them with
// WriteTextfile for the node_exporter textfile collector; watch mode can
// serve them over HTTP with StartMetricsServer.
package telemetry
