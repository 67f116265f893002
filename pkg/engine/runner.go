package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxParallel is the worker count used when none is configured.
const DefaultMaxParallel = 10

// TaskObserver receives task lifecycle notifications. Metrics and tracing
// hook in here.
type TaskObserver interface {
	// TaskStarted is called before Run. The returned context is passed to the task.
	TaskStarted(ctx context.Context, taskName string) context.Context

	// TaskFinished is called after Run returned or panicked.
	TaskFinished(ctx context.Context, taskName string, duration time.Duration, err error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// MaxParallel bounds the number of tasks in flight. Defaults to DefaultMaxParallel.
	MaxParallel int

	// Logger receives per-task log lines. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// Observer is notified around each task. Optional.
	Observer TaskObserver
}

// Runner executes tasks concurrently, isolating failures per task.
//
// The runner applies no enable/disable filtering: a task whose config is
// disabled is still run, and deciding what to do is left to the task.
type Runner struct {
	maxParallel int
	logger      zerolog.Logger
	observer    TaskObserver
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "runner").Logger()
	}
	return &Runner{
		maxParallel: maxParallel,
		logger:      logger,
		observer:    opts.Observer,
	}
}

// taskOutcome is the slot a worker fills for one task.
type taskOutcome struct {
	result *TaskResult
	err    error
}

// Run executes every task and waits for all of them. A task that returns an
// error or panics becomes a TaskError; the others are unaffected. Results
// and errors are returned in the order the tasks were given.
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]*TaskResult, []TaskError) {
	if len(tasks) == 0 {
		return []*TaskResult{}, []TaskError{}
	}

	workerCount := r.maxParallel
	if len(tasks) < workerCount {
		workerCount = len(tasks)
	}

	workQueue := make(chan int, len(tasks))
	for i := range tasks {
		workQueue <- i
	}
	close(workQueue)

	outcomes := make([]taskOutcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				result, err := r.executeTask(ctx, tasks[idx])
				outcomes[idx] = taskOutcome{result: result, err: err}
			}
		}()
	}
	wg.Wait()

	results := make([]*TaskResult, 0, len(tasks))
	taskErrors := make([]TaskError, 0)
	for i, outcome := range outcomes {
		if outcome.err != nil {
			taskErrors = append(taskErrors, TaskError{
				TaskName: FullyQualifiedName(tasks[i]),
				Err:      outcome.err,
			})
			continue
		}
		results = append(results, outcome.result)
	}

	r.logger.Debug().
		Int("tasks", len(tasks)).
		Int("results", len(results)).
		Int("errors", len(taskErrors)).
		Msg("Task batch finished")

	return results, taskErrors
}

// executeTask runs a single task behind the failure boundary.
func (r *Runner) executeTask(ctx context.Context, task Task) (result *TaskResult, err error) {
	name := FullyQualifiedName(task)
	logger := r.logger.With().Str("task", name).Logger()

	taskCtx := ctx
	if r.observer != nil {
		taskCtx = r.observer.TaskStarted(ctx, name)
	}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("Task panicked")
			result = nil
			err = &TaskPanicError{Value: p}
		}
		if r.observer != nil {
			r.observer.TaskFinished(taskCtx, name, time.Since(start), err)
		}
	}()

	logger.Debug().Bool("enabled", task.Config().Enabled).Msg("Running task")

	result, err = task.Run(taskCtx)
	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Task failed")
		return nil, err
	}
	if result == nil {
		err = ErrNoResult
		logger.Warn().Err(err).Msg("Task failed")
		return nil, err
	}

	if verr := ValidateResult(result); verr != nil {
		logger.Warn().Err(verr).Msg("Task result does not satisfy the result contract")
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("Task finished")
	return result, nil
}

// ErrNoResult is recorded for a task that returned neither a result nor an error.
var ErrNoResult = errors.New("task returned no result")

// TaskPanicError is recorded for a task that panicked.
type TaskPanicError struct {
	Value interface{}
}

// Error implements the error interface.
func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
