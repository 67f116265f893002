package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/checkupjs/checkup/pkg/engine"
)

// DefaultEvalTimeout bounds a single rule evaluation.
const DefaultEvalTimeout = 5 * time.Second

// Engine compiles action rules and exposes them as engine.ActionEvaluator
// functions.
type Engine struct {
	mu       sync.RWMutex
	rules    map[string]*compiledRule
	order    []string
	store    storage.Store
	starlark *StarlarkEvaluator
	timeout  time.Duration
	logger   zerolog.Logger
}

// compiledRule is a rule ready for evaluation.
type compiledRule struct {
	rule     *ActionRule
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Logger receives evaluation failures. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// Timeout bounds each evaluation. Defaults to DefaultEvalTimeout.
	Timeout time.Duration
}

// NewEngine creates an empty rule engine.
func NewEngine(opts EngineOptions) *Engine {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "policy-engine").Logger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultEvalTimeout
	}

	return &Engine{
		rules:    make(map[string]*compiledRule),
		store:    inmem.New(),
		starlark: NewStarlarkEvaluator(timeout),
		timeout:  timeout,
		logger:   logger,
	}
}

// AddRule compiles a rule and adds it to the engine. Adding a rule with an
// existing name replaces it in place.
func (e *Engine) AddRule(ctx context.Context, rule ActionRule) error {
	if rule.Name == "" {
		return fmt.Errorf("action rule has no name")
	}

	var cr *compiledRule
	var err error
	switch rule.Language {
	case LanguageRego:
		cr, err = e.compileRego(ctx, &rule)
	case LanguageStarlark:
		cr, err = e.compileStarlark(ctx, &rule)
	default:
		return fmt.Errorf("action rule %s has unsupported language %q", rule.Name, rule.Language)
	}
	if err != nil {
		return fmt.Errorf("failed to compile action rule %s: %w", rule.Name, err)
	}

	if _, _, ok := engine.SplitTaskName(rule.Task); !ok {
		return fmt.Errorf("action rule %s: task %q is not a fully qualified task name", rule.Name, rule.Task)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.Name]; !exists {
		e.order = append(e.order, rule.Name)
	}
	e.rules[rule.Name] = cr

	e.logger.Debug().
		Str("rule", rule.Name).
		Str("task", rule.Task).
		Str("language", string(rule.Language)).
		Msg("Action rule compiled")

	return nil
}

// compileRego parses a Rego module, resolves its task and prepares the
// actions query.
func (e *Engine) compileRego(ctx context.Context, rule *ActionRule) (*compiledRule, error) {
	module, err := ast.ParseModule(rule.Name, rule.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module: %w", err)
	}
	pkg := module.Package.Path.String()

	if rule.Task == "" {
		task, err := e.regoTask(ctx, rule, pkg)
		if err != nil {
			return nil, err
		}
		rule.Task = task
	}

	r := rego.New(
		rego.Module(rule.Name, rule.Source),
		rego.Store(e.store),
		rego.Query(pkg+".actions"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledRule{rule: rule, query: query, compiled: time.Now()}, nil
}

// regoTask evaluates the module's "task" value.
func (e *Engine) regoTask(ctx context.Context, rule *ActionRule, pkg string) (string, error) {
	results, err := rego.New(
		rego.Module(rule.Name, rule.Source),
		rego.Query(pkg+".task"),
	).Eval(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate task: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("module does not define task")
	}
	task, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("task must be a string, got %T", results[0].Expressions[0].Value)
	}
	return task, nil
}

// compileStarlark checks the script defines actions and resolves its task.
func (e *Engine) compileStarlark(ctx context.Context, rule *ActionRule) (*compiledRule, error) {
	task, err := e.starlark.Inspect(ctx, rule.Name, rule.Source)
	if err != nil {
		return nil, err
	}
	if rule.Task == "" {
		rule.Task = task
	}
	return &compiledRule{rule: rule, compiled: time.Now()}, nil
}

// Evaluate runs a rule against a task result.
func (e *Engine) Evaluate(ctx context.Context, name string, result *engine.TaskResult, config engine.TaskConfig) ([]engine.Action, error) {
	e.mu.RLock()
	cr, ok := e.rules[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("action rule not found: %s", name)
	}

	input, err := NewActionInput(result, config)
	if err != nil {
		return nil, err
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var raw interface{}
	switch cr.rule.Language {
	case LanguageRego:
		results, err := cr.query.Eval(evalCtx, rego.EvalInput(input.Map()))
		if err != nil {
			return nil, fmt.Errorf("rule evaluation error: %w", err)
		}
		// An undefined actions rule yields no results.
		if len(results) > 0 && len(results[0].Expressions) > 0 {
			raw = results[0].Expressions[0].Value
		}
	case LanguageStarlark:
		raw, err = e.starlark.CallActions(evalCtx, cr.rule.Name, cr.rule.Source, input)
		if err != nil {
			return nil, err
		}
	}

	return decodeActions(raw)
}

// Evaluator returns an ActionEvaluator for the named rule. Evaluation
// failures are logged and produce no actions.
func (e *Engine) Evaluator(name string) engine.ActionEvaluator {
	return func(result *engine.TaskResult, config engine.TaskConfig) []engine.Action {
		start := time.Now()
		actions, err := e.Evaluate(context.Background(), name, result, config)
		if err != nil {
			e.logger.Error().Err(err).
				Str("rule", name).
				Str("task", result.Info.TaskName).
				Msg("Action rule evaluation failed")
			return nil
		}
		e.logger.Debug().
			Str("rule", name).
			Int("actions", len(actions)).
			Dur("duration", time.Since(start)).
			Msg("Action rule evaluated")
		return actions
	}
}

// RegisterActions registers every enabled rule with the registry under its
// task, in the order the rules were added.
func (e *Engine) RegisterActions(registry *engine.ActionRegistry) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, name := range e.order {
		cr := e.rules[name]
		if !cr.rule.Enabled {
			continue
		}
		registry.RegisterActions(cr.rule.Task, e.Evaluator(name))
	}
}

// GetRule returns a rule by name.
func (e *Engine) GetRule(name string) (*ActionRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cr, exists := e.rules[name]
	if !exists {
		return nil, fmt.Errorf("action rule not found: %s", name)
	}

	rule := *cr.rule
	return &rule, nil
}

// ListRules returns all loaded rules in the order they were added.
func (e *Engine) ListRules() []ActionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]ActionRule, 0, len(e.order))
	for _, name := range e.order {
		rules = append(rules, *e.rules[name].rule)
	}
	return rules
}

// ReplaceRules swaps the rule set for rules, as done on reload. On a
// compile failure the previous set is kept.
func (e *Engine) ReplaceRules(ctx context.Context, rules []ActionRule) error {
	next := NewEngine(EngineOptions{Timeout: e.timeout})
	next.logger = e.logger
	for i := range rules {
		if err := next.AddRule(ctx, rules[i]); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = next.rules
	e.order = next.order
	e.logger.Info().Int("count", len(rules)).Msg("Action rules replaced")
	return nil
}

// EnableRule enables a rule by name.
func (e *Engine) EnableRule(name string) error {
	return e.setEnabled(name, true)
}

// DisableRule disables a rule by name.
func (e *Engine) DisableRule(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cr, exists := e.rules[name]
	if !exists {
		return fmt.Errorf("action rule not found: %s", name)
	}

	cr.rule.Enabled = enabled
	e.logger.Info().Str("rule", name).Bool("enabled", enabled).Msg("Action rule toggled")

	return nil
}
