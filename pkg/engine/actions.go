package engine

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// ActionEvaluator derives actions from a task result and the task's config.
// It must be a pure function of its inputs.
type ActionEvaluator func(result *TaskResult, config TaskConfig) []Action

type registeredEvaluator struct {
	taskName  string
	evaluator ActionEvaluator
}

// ActionRegistry maps task names to evaluators in registration order.
type ActionRegistry struct {
	mu         sync.RWMutex
	evaluators []registeredEvaluator
	logger     zerolog.Logger
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry(logger *zerolog.Logger) *ActionRegistry {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "actions").Logger()
	}
	return &ActionRegistry{logger: l}
}

// RegisterActions adds an evaluator for a fully qualified task name.
// Registration is additive: a task may have several evaluators.
func (r *ActionRegistry) RegisterActions(taskName string, evaluator ActionEvaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluators = append(r.evaluators, registeredEvaluator{taskName: taskName, evaluator: evaluator})
}

// TaskNames returns the task name of each evaluator in registration order.
func (r *ActionRegistry) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		names = append(names, e.taskName)
	}
	return names
}

// EvaluateActions runs every evaluator whose task and result are both
// present and concatenates the actions. Missing data yields no actions.
func (r *ActionRegistry) EvaluateActions(tasks *TaskList, results []*TaskResult) []Action {
	r.mu.RLock()
	evaluators := append([]registeredEvaluator{}, r.evaluators...)
	r.mu.RUnlock()

	byName := make(map[string]*TaskResult, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		if _, seen := byName[result.Info.TaskName]; !seen {
			byName[result.Info.TaskName] = result
		}
	}

	actions := make([]Action, 0)
	for _, e := range evaluators {
		task, ok := tasks.FindTask(e.taskName)
		if !ok {
			continue
		}
		result, ok := byName[e.taskName]
		if !ok {
			continue
		}

		for _, action := range e.evaluator(result, task.Config()) {
			if err := action.Validate(); err != nil {
				r.logger.Warn().Err(err).Str("task", e.taskName).Msg("Dropping invalid action")
				continue
			}
			actions = append(actions, action)
		}
	}

	return actions
}

// ThresholdFromOptions reads a numeric threshold from task options, falling
// back to def when the key is absent or not numeric.
func ThresholdFromOptions(options map[string]interface{}, key string, def float64) float64 {
	raw, ok := options[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// ThresholdRule describes a single-metric action.
type ThresholdRule struct {
	Name             string
	Summary          string
	DefaultThreshold float64

	// OptionKey is the task option that overrides DefaultThreshold. Defaults to "threshold".
	OptionKey string

	// Details formats the details line from the metric.
	Details func(metric float64) string

	// Items lists supporting lines for the action.
	Items func(metric float64) []string
}

// Evaluate emits one action when metric meets or exceeds the threshold.
func (t ThresholdRule) Evaluate(metric float64, config TaskConfig) []Action {
	key := t.OptionKey
	if key == "" {
		key = "threshold"
	}
	threshold := ThresholdFromOptions(config.Options, key, t.DefaultThreshold)
	if metric < threshold {
		return nil
	}

	action := Action{
		Name:             t.Name,
		Summary:          t.Summary,
		Input:            metric,
		DefaultThreshold: t.DefaultThreshold,
		Items:            []string{},
	}
	if t.Details != nil {
		action.Details = t.Details(metric)
	} else {
		action.Details = fmt.Sprintf("%s: %s", t.Summary, strconv.FormatFloat(metric, 'f', -1, 64))
	}
	if t.Items != nil {
		action.Items = t.Items(metric)
	}
	return []Action{action}
}
