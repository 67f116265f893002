// Package engine provides the core types and orchestration primitives for checkup.
//
// # Overview
//
// checkup runs independent analysis tasks against a project and aggregates
// their results. The engine owns the lifecycle of that work:
//
//  1. Config - the resolved .checkuprc (Config, TaskConfigValue, ParseConfigTuple)
//  2. Register - plugins fill the parser, action, reporter and task registries
//  3. Run - the Runner executes tasks with per-task failure isolation
//  4. Actions - evaluators turn results into threshold-driven recommendations
//  5. Report - a RunOutput is handed to a reporter
//
// # Core Domain Types
//
//   - Task: a unit of analysis identified by plugin and task name
//   - TaskContext: the immutable run-scoped input every task receives
//   - TaskResult / TaskError: the two outcomes of running a task
//   - Action: a recommendation derived from a result and the task's config
//   - CheckupError: a fatal orchestration error with an exit code
//
// # Plugins
//
// Plugins implement the Plugin interface and are looked up by canonical name
// in a PluginCatalog:
//
//	type Plugin interface {
//	    Name() string
//	    RegisterParsers(parsers *ParserRegistry) error
//	    RegisterActions(actions *ActionRegistry) error
//	    RegisterReporters(reporters *ReporterRegistry) error
//	    RegisterTasks(ctx TaskContext, tasks *TaskList) error
//	}
//
// # Failure Isolation
//
// A task that returns an error or panics is recorded as a TaskError; every
// other task still runs and reports. Orchestration failures (bad config,
// unknown task names) are CheckupErrors and end the run.
//
// The Runner does not skip disabled tasks. Each task reads Config().Enabled
// and decides for itself.
package engine
