package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ParserFunc parses a source file for a task. The result type is parser specific.
type ParserFunc func(ctx context.Context, path string, source []byte) (interface{}, error)

// ParserRegistry maps parser names to implementations. Plugins fill it during
// the register-parsers phase; tasks receive a read-only snapshot.
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[string]ParserFunc
}

// NewParserRegistry creates an empty parser registry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{parsers: make(map[string]ParserFunc)}
}

// RegisterParser adds a parser. Names must be unique.
func (r *ParserRegistry) RegisterParser(name string, parser ParserFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[name]; exists {
		return fmt.Errorf("parser %s already registered", name)
	}
	r.parsers[name] = parser
	return nil
}

// Parsers returns an immutable view of the registered parsers.
func (r *ParserRegistry) Parsers() Parsers {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]ParserFunc, len(r.parsers))
	for name, p := range r.parsers {
		snapshot[name] = p
	}
	return Parsers{parsers: snapshot}
}

// Parsers is a read-only set of parsers handed to tasks.
type Parsers struct {
	parsers map[string]ParserFunc
}

// Get returns the parser registered under name.
func (p Parsers) Get(name string) (ParserFunc, bool) {
	fn, ok := p.parsers[name]
	return fn, ok
}

// Names returns the parser names in sorted order.
func (p Parsers) Names() []string {
	names := make([]string, 0, len(p.parsers))
	for name := range p.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskContext is the run-scoped input shared by every task. It is immutable:
// fields are unexported and getters return copies.
type TaskContext struct {
	cliArguments []string
	cliFlags     RunFlags
	parsers      Parsers
	config       *Config
	pkg          PackageJSON
	paths        []string
}

// TaskContextOptions holds the values used to build a TaskContext.
type TaskContextOptions struct {
	CLIArguments []string
	CLIFlags     RunFlags
	Parsers      Parsers
	Config       *Config
	Pkg          PackageJSON
	Paths        []string
}

// NewTaskContext freezes opts into a TaskContext.
func NewTaskContext(opts TaskContextOptions) TaskContext {
	cfg := opts.Config.Clone()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	flags := opts.CLIFlags
	flags.Tasks = append([]string(nil), flags.Tasks...)
	flags.ExcludePaths = append([]string(nil), flags.ExcludePaths...)

	return TaskContext{
		cliArguments: append([]string{}, opts.CLIArguments...),
		cliFlags:     flags,
		parsers:      opts.Parsers,
		config:       cfg,
		pkg:          opts.Pkg,
		paths:        append([]string{}, opts.Paths...),
	}
}

// CLIArguments returns the positional CLI arguments.
func (c TaskContext) CLIArguments() []string {
	return append([]string{}, c.cliArguments...)
}

// CLIFlags returns the run flags.
func (c TaskContext) CLIFlags() RunFlags {
	flags := c.cliFlags
	flags.Tasks = append([]string(nil), flags.Tasks...)
	flags.ExcludePaths = append([]string(nil), flags.ExcludePaths...)
	return flags
}

// Parsers returns the registered parsers.
func (c TaskContext) Parsers() Parsers {
	return c.parsers
}

// Config returns a copy of the resolved configuration.
func (c TaskContext) Config() *Config {
	if c.config == nil {
		return DefaultConfig()
	}
	return c.config.Clone()
}

// TaskConfig resolves the config entry for a fully qualified task name.
func (c TaskContext) TaskConfig(fullyQualifiedName string) TaskConfig {
	return c.config.TaskConfigFor(fullyQualifiedName)
}

// Pkg returns the project's package metadata.
func (c TaskContext) Pkg() PackageJSON {
	return c.pkg
}

// Paths returns the resolved file paths to analyze.
func (c TaskContext) Paths() []string {
	return append([]string{}, c.paths...)
}

// Cwd is the root directory of the run.
func (c TaskContext) Cwd() string {
	return c.cliFlags.Cwd
}
