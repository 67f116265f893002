package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/checkupjs/checkup/pkg/engine"
)

// Language is the language an action rule is written in.
type Language string

const (
	// LanguageRego rules are Rego modules producing data.<package>.actions.
	LanguageRego Language = "rego"

	// LanguageStarlark rules are Starlark scripts defining actions(result, config).
	LanguageStarlark Language = "starlark"
)

// ActionRule is a user-supplied action evaluator for one task.
type ActionRule struct {
	// Name is the unique name of the rule. Defaults to the file name.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Task is the fully qualified task name the rule evaluates. When empty it
	// is read from the rule's own "task" value.
	Task string `json:"task"`

	// Language selects the evaluator.
	Language Language `json:"language"`

	// Source contains the rule code.
	Source string `json:"source"`

	// Path is the file the rule was loaded from, if any.
	Path string `json:"path,omitempty"`

	// Enabled indicates if the rule is registered with the action registry.
	Enabled bool `json:"enabled"`

	// LoadedAt is when the rule was loaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// ActionInput is the document a rule sees. Rego rules read it as input;
// Starlark rules receive result and config as arguments.
type ActionInput struct {
	// Task is the fully qualified task name.
	Task string `json:"task"`

	// Result is the task's payload, normalized to JSON values.
	Result interface{} `json:"result"`

	// Config is the task's resolved configuration.
	Config ActionInputConfig `json:"config"`
}

// ActionInputConfig mirrors engine.TaskConfig with JSON names.
type ActionInputConfig struct {
	Enabled bool                   `json:"enabled"`
	Options map[string]interface{} `json:"options"`
}

// NewActionInput builds the rule input for a result. The payload is
// round-tripped through JSON so rules see maps, lists and float64 numbers
// regardless of the Go type the task produced.
func NewActionInput(result *engine.TaskResult, config engine.TaskConfig) (ActionInput, error) {
	payload, err := normalize(result.Result)
	if err != nil {
		return ActionInput{}, fmt.Errorf("failed to normalize result of %s: %w", result.Info.TaskName, err)
	}
	options, err := normalize(config.Options)
	if err != nil {
		return ActionInput{}, fmt.Errorf("failed to normalize options of %s: %w", result.Info.TaskName, err)
	}
	opts, _ := options.(map[string]interface{})
	if opts == nil {
		opts = map[string]interface{}{}
	}

	return ActionInput{
		Task:   result.Info.TaskName,
		Result: payload,
		Config: ActionInputConfig{Enabled: config.Enabled, Options: opts},
	}, nil
}

// Map returns the input as a generic map.
func (in ActionInput) Map() map[string]interface{} {
	return map[string]interface{}{
		"task":   in.Task,
		"result": in.Result,
		"config": map[string]interface{}{
			"enabled": in.Config.Enabled,
			"options": in.Config.Options,
		},
	}
}

func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeActions converts rule output into actions. Each element must be an
// object with at least name and summary.
func decodeActions(raw interface{}) ([]engine.Action, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}

	var actions []engine.Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("actions must be a list of objects: %w", err)
	}

	for i := range actions {
		if actions[i].Items == nil {
			actions[i].Items = []string{}
		}
		if err := actions[i].Validate(); err != nil {
			return nil, fmt.Errorf("action %d is invalid: %w", i, err)
		}
	}
	return actions, nil
}
