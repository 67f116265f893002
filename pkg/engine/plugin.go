package engine

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Plugin is the registration contract a plugin satisfies. The session calls
// the callbacks in a fixed order: parsers, actions, reporters, tasks.
type Plugin interface {
	// Name is the canonical package name, e.g. "checkup-plugin-javascript".
	Name() string

	// RegisterParsers adds parsers shared by the plugin's tasks.
	RegisterParsers(parsers *ParserRegistry) error

	// RegisterActions adds action evaluators keyed by fully qualified task name.
	RegisterActions(actions *ActionRegistry) error

	// RegisterReporters adds task-specific renderers.
	RegisterReporters(reporters *ReporterRegistry) error

	// RegisterTasks constructs the plugin's tasks from the frozen context.
	RegisterTasks(ctx TaskContext, tasks *TaskList) error
}

// PluginFactory constructs a plugin instance for one run.
type PluginFactory func() Plugin

// PluginCatalog maps canonical plugin names to factories. Plugins are
// compiled in and looked up by name; nothing is discovered dynamically.
type PluginCatalog struct {
	mu        sync.RWMutex
	factories map[string]PluginFactory
}

// NewPluginCatalog creates an empty catalog.
func NewPluginCatalog() *PluginCatalog {
	return &PluginCatalog{factories: make(map[string]PluginFactory)}
}

// Add registers a factory under a canonical plugin name.
func (c *PluginCatalog) Add(name string, factory PluginFactory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[name]; exists {
		return fmt.Errorf("plugin %s already in catalog", name)
	}
	c.factories[name] = factory
	return nil
}

// Load instantiates the named plugins in order. An unknown name is a
// PluginNotFound error.
func (c *PluginCatalog) Load(names []string) ([]Plugin, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		factory, ok := c.factories[name]
		if !ok {
			return nil, NewCheckupError(ErrorKindPluginNotFound, ErrorOptions{PluginName: name})
		}
		plugins = append(plugins, factory())
	}
	return plugins, nil
}

// Names returns the catalog's plugin names, sorted.
func (c *PluginCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskReporter renders a single task's result for the summary reporter.
type TaskReporter func(w io.Writer, result *TaskResult) error

// ReporterRegistry maps fully qualified task names to renderers.
type ReporterRegistry struct {
	mu        sync.RWMutex
	reporters map[string]TaskReporter
}

// NewReporterRegistry creates an empty reporter registry.
func NewReporterRegistry() *ReporterRegistry {
	return &ReporterRegistry{reporters: make(map[string]TaskReporter)}
}

// RegisterTaskReporter sets the renderer for a task. A later registration
// for the same task replaces the earlier one.
func (r *ReporterRegistry) RegisterTaskReporter(taskName string, reporter TaskReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reporters[taskName] = reporter
}

// Get returns the renderer for a task.
func (r *ReporterRegistry) Get(taskName string) (TaskReporter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.reporters[taskName]
	return rep, ok
}
