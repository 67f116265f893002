package engine

import "fmt"

// RunStatus summarizes how a run ended.
type RunStatus string

const (
	// RunStatusSucceeded indicates every task produced a result.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial indicates some tasks failed and others succeeded.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed indicates no task produced a result, or the run hit an orchestration error.
	RunStatusFailed RunStatus = "failed"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// StatusFor derives the status from result and error counts.
func StatusFor(results, taskErrors int) RunStatus {
	switch {
	case taskErrors == 0:
		return RunStatusSucceeded
	case results > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// RunOutput is everything handed to the reporting layer.
type RunOutput struct {
	RunID   string        `json:"runId" yaml:"runId"`
	Status  RunStatus     `json:"status" yaml:"status"`
	Flags   RunFlags      `json:"flags" yaml:"flags"`
	Info    []*TaskResult `json:"info" yaml:"info"`
	Results []*TaskResult `json:"results" yaml:"results"`
	Errors  []TaskError   `json:"errors" yaml:"errors"`
	Actions []Action      `json:"actions" yaml:"actions"`
}
