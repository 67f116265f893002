package testutil

import (
	"github.com/checkupjs/checkup/pkg/engine"
)

// ContextOptions overrides parts of the TaskContext built by NewTaskContext.
type ContextOptions struct {
	Cwd     string
	Paths   []string
	Args    []string
	Config  *engine.Config
	Pkg     engine.PackageJSON
	Flags   *engine.RunFlags
	Parsers *engine.ParserRegistry
}

// NewTaskContext builds a TaskContext with defaults for everything not set.
func NewTaskContext(opts ContextOptions) engine.TaskContext {
	flags := engine.RunFlags{Cwd: opts.Cwd, Format: engine.OutputFormatSummary}
	if opts.Flags != nil {
		flags = *opts.Flags
		if flags.Cwd == "" {
			flags.Cwd = opts.Cwd
		}
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = engine.DefaultConfig()
	}

	parsers := opts.Parsers
	if parsers == nil {
		parsers = engine.NewParserRegistry()
	}

	return engine.NewTaskContext(engine.TaskContextOptions{
		CLIArguments: opts.Args,
		CLIFlags:     flags,
		Parsers:      parsers.Parsers(),
		Config:       cfg,
		Pkg:          opts.Pkg,
		Paths:        opts.Paths,
	})
}

// ContextForProject builds a TaskContext rooted at the project with its files as paths.
func ContextForProject(p *Project, cfg *engine.Config) engine.TaskContext {
	return NewTaskContext(ContextOptions{
		Cwd:    p.BaseDir,
		Paths:  p.FilePaths(),
		Config: cfg,
		Pkg:    p.Pkg(),
	})
}

// ConfigWithTasks returns the default config with the given task entries.
func ConfigWithTasks(tasks map[string]engine.TaskConfigValue) *engine.Config {
	cfg := engine.DefaultConfig()
	for name, value := range tasks {
		cfg.Tasks[name] = value
	}
	return cfg
}
