// Package checkup runs a complete checkup: it resolves the config, loads
// plugins and action rules, runs the meta and plugin tasks, evaluates
// actions, and records the run.
package checkup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/checkupjs/checkup/pkg/config"
	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/paths"
	"github.com/checkupjs/checkup/pkg/policy"
	"github.com/checkupjs/checkup/pkg/report"
	"github.com/checkupjs/checkup/pkg/stores"
	"github.com/checkupjs/checkup/pkg/tasks"
	"github.com/checkupjs/checkup/pkg/telemetry"
	"github.com/checkupjs/checkup/plugins/javascript"
)

// TaskFactory builds a task from the run's frozen context.
type TaskFactory func(ctx engine.TaskContext) engine.Task

// Options configures a Session.
type Options struct {
	// Flags are the run flags. An empty Cwd means the process working directory.
	Flags engine.RunFlags

	// Args are the positional paths to analyze.
	Args []string

	// Version is reported by the project meta task.
	Version string

	// Catalog resolves configured plugin names. Defaults to DefaultCatalog().
	Catalog *engine.PluginCatalog

	// RulePaths are files or directories of .rego and .star action rules.
	RulePaths []string

	// Telemetry instruments the run. Defaults to telemetry.Nop().
	Telemetry *telemetry.Telemetry

	// Store records each run when set.
	Store stores.Store

	// ExtraTasks are registered after the plugins' tasks.
	ExtraTasks []TaskFactory

	// MaxParallel bounds concurrently running tasks.
	MaxParallel int
}

// Result is the outcome of a run.
type Result struct {
	// Output is nil when the run listed tasks or failed before running tasks.
	Output *engine.RunOutput

	// TaskNames holds the registered plugin task names for --listTasks.
	TaskNames []string

	// ConfigPath is the config file the run read.
	ConfigPath string

	// Reporters holds the task reporters the plugins registered.
	Reporters *engine.ReporterRegistry

	// Run is the history record, when a store is configured.
	Run *stores.Run
}

// Session runs checkups with a fixed set of options. It may be run more
// than once, as watch mode does.
type Session struct {
	opts Options
	tel  *telemetry.Telemetry

	rulesMu     sync.Mutex
	rules       *policy.Engine
	rulesLoaded bool
}

// DefaultCatalog returns the plugins compiled into checkup.
func DefaultCatalog() *engine.PluginCatalog {
	catalog := engine.NewPluginCatalog()
	_ = catalog.Add(javascript.Name, javascript.New)
	return catalog
}

// NewSession creates a session.
func NewSession(opts Options) *Session {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Session{
		opts: opts,
		tel:  tel,
		rules: policy.NewEngine(policy.EngineOptions{
			Logger: tel.Logger.Zerolog(),
		}),
	}
}

// Rules returns the session's action rule engine.
func (s *Session) Rules() *policy.Engine {
	return s.rules
}

// LoadRules (re)loads the action rules from the configured rule paths.
// On failure the previously loaded rules stay in place.
func (s *Session) LoadRules(ctx context.Context) error {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	return s.loadRulesLocked(ctx)
}

func (s *Session) loadRulesLocked(ctx context.Context) error {
	rules, err := policy.NewLoader(s.tel.Logger.Zerolog()).LoadFromPaths(ctx, s.opts.RulePaths)
	if err != nil {
		return err
	}
	if err := s.rules.ReplaceRules(ctx, rules); err != nil {
		return err
	}
	s.rulesLoaded = true
	return nil
}

// ApplyRules replaces the loaded action rules, as rule watching does.
func (s *Session) ApplyRules(ctx context.Context, rules []policy.ActionRule) error {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	if err := s.rules.ReplaceRules(ctx, rules); err != nil {
		return err
	}
	s.rulesLoaded = true
	return nil
}

func (s *Session) ensureRules(ctx context.Context) error {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	if s.rulesLoaded || len(s.opts.RulePaths) == 0 {
		return nil
	}
	return s.loadRulesLocked(ctx)
}

// Cwd returns the absolute directory the session runs in.
func (s *Session) Cwd() (string, error) {
	cwd := s.opts.Flags.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cwd = wd
	}
	return filepath.Abs(cwd)
}

// Run performs one checkup. Orchestration failures are returned as
// *engine.CheckupError. When some --task names matched nothing, the matched
// tasks still run and the returned Result carries their output alongside a
// TasksNotFound error.
func (s *Session) Run(ctx context.Context) (res *Result, err error) {
	flags := s.opts.Flags
	if err := flags.Validate(); err != nil {
		return nil, err
	}

	cwd, err := s.Cwd()
	if err != nil {
		return nil, err
	}
	flags.Cwd = cwd

	runID := uuid.New().String()
	startedAt := time.Now()
	scope := s.tel.StartRun(ctx, runID, cwd)
	logger := scope.Logger.Zerolog().With().Str("component", "session").Logger()

	status := engine.RunStatusFailed
	defer func() {
		scope.End(string(status), err)
	}()

	res = &Result{}

	// Config
	phaseCtx, endPhase := scope.Phase("config")
	configPath, cfg, err := s.loadConfig(phaseCtx, flags, cwd)
	endPhase(err)
	if err != nil {
		return nil, err
	}
	res.ConfigPath = configPath
	logger.Debug().Str("config", configPath).Strs("plugins", cfg.Plugins).Msg("Config loaded")

	// Registration
	_, endPhase = scope.Phase("register")
	reg, err := s.register(ctx, flags, cfg, cwd, runID, &logger)
	endPhase(err)
	if err != nil {
		return nil, err
	}
	res.Reporters = reg.reporters
	s.tel.Metrics.SetAnalyzedPaths(len(reg.context.Paths()))

	if flags.ListTasks {
		res.TaskNames = reg.pluginTasks.FullyQualifiedTaskNames()
		status = engine.RunStatusSucceeded
		return res, nil
	}

	// Tasks
	taskCtx, endPhase := scope.Phase("tasks")
	info, metaErrors := reg.metaTasks.RunTasks(taskCtx)

	var results []*engine.TaskResult
	var pluginErrors []engine.TaskError
	var notFound []string
	if len(flags.Tasks) > 0 {
		var found []engine.Task
		found, notFound = reg.pluginTasks.FindTasks(flags.Tasks...)
		results, pluginErrors = reg.pluginTasks.RunSubset(taskCtx, found)
	} else {
		results, pluginErrors = reg.pluginTasks.RunTasks(taskCtx)
	}
	endPhase(nil)

	// Actions
	_, endPhase = scope.Phase("actions")
	actions := reg.actions.EvaluateActions(reg.pluginTasks, results)
	for _, action := range actions {
		s.tel.Metrics.RecordAction(action.Name)
	}
	endPhase(nil)

	taskErrors := append(append([]engine.TaskError{}, metaErrors...), pluginErrors...)
	if results == nil {
		results = []*engine.TaskResult{}
	}
	status = engine.StatusFor(len(results), len(taskErrors))

	res.Output = &engine.RunOutput{
		RunID:   runID,
		Status:  status,
		Flags:   flags,
		Info:    info,
		Results: results,
		Errors:  taskErrors,
		Actions: actions,
	}

	if s.opts.Store != nil {
		run, storeErr := s.opts.Store.SaveRun(ctx, res.Output, stores.RunMeta{
			Cwd:         cwd,
			ConfigPath:  configPath,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		})
		if storeErr != nil {
			logger.Warn().Err(storeErr).Msg("Failed to record run history")
		} else {
			res.Run = run
		}
	}

	if len(notFound) > 0 {
		return res, engine.NewCheckupError(engine.ErrorKindTasksNotFound, engine.ErrorOptions{TaskNames: notFound})
	}
	return res, nil
}

func (s *Session) loadConfig(ctx context.Context, flags engine.RunFlags, cwd string) (string, *engine.Config, error) {
	configPath, err := config.GetConfigPath(ctx, flags.Config, cwd)
	if err != nil {
		return "", nil, err
	}
	if config.IsRemote(flags.Config) {
		defer os.Remove(configPath)
	}

	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		return "", nil, err
	}
	if config.IsRemote(flags.Config) {
		configPath = flags.Config
	}
	return configPath, cfg, nil
}

// registration is everything assembled before tasks run.
type registration struct {
	context     engine.TaskContext
	metaTasks   *engine.MetaTaskList
	pluginTasks *engine.TaskList
	actions     *engine.ActionRegistry
	reporters   *engine.ReporterRegistry
}

// register loads plugins and runs their callbacks in order: parsers,
// actions, reporters, then tasks once the context is frozen.
func (s *Session) register(ctx context.Context, flags engine.RunFlags, cfg *engine.Config, cwd, runID string, logger *zerolog.Logger) (*registration, error) {
	plugins, err := s.opts.Catalog.Load(cfg.Plugins)
	if err != nil {
		return nil, err
	}

	parsers := engine.NewParserRegistry()
	actions := engine.NewActionRegistry(logger)
	reporters := engine.NewReporterRegistry()
	report.RegisterBuiltinReporters(reporters)

	for _, p := range plugins {
		if err := p.RegisterParsers(parsers); err != nil {
			return nil, fmt.Errorf("plugin %s failed to register parsers: %w", p.Name(), err)
		}
	}
	for _, p := range plugins {
		if err := p.RegisterActions(actions); err != nil {
			return nil, fmt.Errorf("plugin %s failed to register actions: %w", p.Name(), err)
		}
	}
	for _, p := range plugins {
		if err := p.RegisterReporters(reporters); err != nil {
			return nil, fmt.Errorf("plugin %s failed to register reporters: %w", p.Name(), err)
		}
	}

	if err := s.ensureRules(ctx); err != nil {
		return nil, fmt.Errorf("failed to load action rules: %w", err)
	}
	s.rules.RegisterActions(actions)

	excludePaths := config.MergeExcludePaths(flags.ExcludePaths, cfg.ExcludePaths)
	files, err := paths.Resolve(cwd, s.opts.Args, excludePaths)
	if err != nil {
		return nil, err
	}

	pkg, err := tasks.ReadPackageJSON(cwd)
	if err != nil {
		return nil, err
	}

	taskContext := engine.NewTaskContext(engine.TaskContextOptions{
		CLIArguments: s.opts.Args,
		CLIFlags:     flags,
		Parsers:      parsers.Parsers(),
		Config:       cfg,
		Pkg:          pkg,
		Paths:        files,
	})

	runner := engine.NewRunner(engine.RunnerOptions{
		MaxParallel: s.opts.MaxParallel,
		Logger:      logger,
		Observer:    s.tel.TaskObserver(runID),
	})

	metaTasks := engine.NewMetaTaskList(runner)
	if err := metaTasks.RegisterTask(tasks.NewProjectMetaTask(taskContext, s.opts.Version)); err != nil {
		return nil, err
	}

	pluginTasks := engine.NewTaskList(runner)
	if err := pluginTasks.RegisterTask(tasks.NewLinesOfCodeTask(taskContext)); err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if err := p.RegisterTasks(taskContext, pluginTasks); err != nil {
			return nil, fmt.Errorf("plugin %s failed to register tasks: %w", p.Name(), err)
		}
	}
	for _, factory := range s.opts.ExtraTasks {
		if err := pluginTasks.RegisterTask(factory(taskContext)); err != nil {
			return nil, err
		}
	}

	logger.Debug().
		Int("plugins", len(plugins)).
		Int("tasks", pluginTasks.Len()).
		Int("paths", len(files)).
		Msg("Registration complete")

	return &registration{
		context:     taskContext,
		metaTasks:   metaTasks,
		pluginTasks: pluginTasks,
		actions:     actions,
		reporters:   reporters,
	}, nil
}
