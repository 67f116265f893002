package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Task is a unit of analysis work. Implementations are supplied by plugins.
type Task interface {
	// Name is the task name without the plugin prefix.
	Name() string

	// PluginName is the name of the plugin that owns the task.
	PluginName() string

	// DisplayName is the human-readable name used by reporters.
	DisplayName() string

	// Category groups tasks in reports (e.g. "metrics", "linting").
	Category() string

	// Group is an optional sub-grouping within a category.
	Group() string

	// Config is the task's resolved configuration.
	Config() TaskConfig

	// Run performs the analysis.
	Run(ctx context.Context) (*TaskResult, error)
}

// FullyQualifiedName returns pluginName/taskName.
func FullyQualifiedName(t Task) string {
	return t.PluginName() + "/" + t.Name()
}

// SplitTaskName splits a fully qualified name into plugin and task parts.
func SplitTaskName(fullyQualifiedName string) (pluginName, taskName string, ok bool) {
	idx := strings.LastIndex(fullyQualifiedName, "/")
	if idx <= 0 || idx == len(fullyQualifiedName)-1 {
		return "", "", false
	}
	return fullyQualifiedName[:idx], fullyQualifiedName[idx+1:], true
}

// TaskInfo identifies the task that produced a result.
type TaskInfo struct {
	// TaskName is the fully qualified task name.
	TaskName string `json:"taskName" yaml:"taskName" validate:"required,contains=/"`

	// TaskDisplayName is the human-readable name.
	TaskDisplayName string `json:"taskDisplayName" yaml:"taskDisplayName" validate:"required"`

	// Category is the report category.
	Category string `json:"category" yaml:"category"`

	// Group is the optional report group.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// TaskResult is the structured output of a task.
type TaskResult struct {
	Info TaskInfo `json:"info" yaml:"info"`

	// Result is the task-specific payload. It must be JSON serializable.
	Result interface{} `json:"result" yaml:"result"`
}

// NewTaskResult builds a result whose info comes from the task identity.
func NewTaskResult(t Task, payload interface{}) *TaskResult {
	return &TaskResult{
		Info: TaskInfo{
			TaskName:        FullyQualifiedName(t),
			TaskDisplayName: t.DisplayName(),
			Category:        t.Category(),
			Group:           t.Group(),
		},
		Result: payload,
	}
}

// ValidateResult checks a result against the result contract consumed by reporters.
func ValidateResult(result *TaskResult) error {
	if result == nil {
		return fmt.Errorf("task result is nil")
	}
	if err := validate.Struct(result.Info); err != nil {
		return fmt.Errorf("task result info is invalid: %w", err)
	}
	if _, err := json.Marshal(result.Result); err != nil {
		return fmt.Errorf("task result payload for %s is not serializable: %w", result.Info.TaskName, err)
	}
	return nil
}

// TaskError records a task that failed during Run.
type TaskError struct {
	TaskName string `json:"taskName"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskName, e.Err)
}

// Unwrap returns the failure raised by the task.
func (e TaskError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the underlying error as its message.
func (e TaskError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		TaskName string `json:"taskName"`
		Error    string `json:"error"`
	}{e.TaskName, msg})
}

// MarshalYAML renders the underlying error as its message.
func (e TaskError) MarshalYAML() (interface{}, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return map[string]string{"taskName": e.TaskName, "error": msg}, nil
}

// Action is a threshold-triggered recommendation derived from a task result.
type Action struct {
	Name             string   `json:"name" yaml:"name" validate:"required"`
	Summary          string   `json:"summary" yaml:"summary" validate:"required"`
	Details          string   `json:"details" yaml:"details"`
	Input            float64  `json:"input" yaml:"input"`
	DefaultThreshold float64  `json:"defaultThreshold" yaml:"defaultThreshold"`
	Items            []string `json:"items" yaml:"items"`
}

// Validate checks the action's required fields.
func (a Action) Validate() error {
	return validate.Struct(a)
}

// OutputFormat selects the reporter.
type OutputFormat string

const (
	OutputFormatSummary OutputFormat = "summary"
	OutputFormatJSON    OutputFormat = "json"
	OutputFormatYAML    OutputFormat = "yaml"
)

// OutputFormats lists the supported formats in display order.
func OutputFormats() []OutputFormat {
	return []OutputFormat{OutputFormatSummary, OutputFormatJSON, OutputFormatYAML}
}

// RunFlags are the CLI flags that affect a run.
type RunFlags struct {
	Cwd          string       `json:"cwd" yaml:"cwd"`
	Config       string       `json:"config,omitempty" yaml:"config,omitempty"`
	Tasks        []string     `json:"task,omitempty" yaml:"task,omitempty"`
	ExcludePaths []string     `json:"excludePaths,omitempty" yaml:"excludePaths,omitempty"`
	Format       OutputFormat `json:"format" yaml:"format"`
	OutputFile   string       `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
	ListTasks    bool         `json:"listTasks" yaml:"listTasks"`
}

// Validate checks flag combinations.
func (f RunFlags) Validate() error {
	switch f.Format {
	case "", OutputFormatSummary, OutputFormatJSON, OutputFormatYAML:
	default:
		return NewCheckupError(ErrorKindInvalidFlags, ErrorOptions{
			Reason: fmt.Sprintf("Unknown --format %q", string(f.Format)),
		})
	}
	if f.OutputFile != "" && (f.Format == "" || f.Format == OutputFormatSummary) {
		return NewCheckupError(ErrorKindInvalidFlags, ErrorOptions{
			Reason: "Missing --format flag. --format=json or --format=yaml must also be provided when using --outputFile",
		})
	}
	return nil
}

// PackageJSON is the subset of package.json exposed to tasks.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Repository      json.RawMessage   `json:"repository,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}
