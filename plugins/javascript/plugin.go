// Package javascript is the checkup plugin for JavaScript projects. It
// counts eslint-disable comments and recommends reducing them.
package javascript

import (
	"github.com/checkupjs/checkup/pkg/engine"
)

const (
	// Name is the canonical plugin name used in .checkuprc.
	Name = "checkup-plugin-javascript"

	// ShortName prefixes the plugin's task names.
	ShortName = "javascript"
)

// Plugin implements engine.Plugin.
type Plugin struct{}

// New returns the plugin. It is an engine.PluginFactory.
func New() engine.Plugin {
	return &Plugin{}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return Name }

// RegisterParsers implements engine.Plugin.
func (p *Plugin) RegisterParsers(parsers *engine.ParserRegistry) error {
	return parsers.RegisterParser(CommentsParserName, ParseComments)
}

// RegisterActions implements engine.Plugin.
func (p *Plugin) RegisterActions(actions *engine.ActionRegistry) error {
	actions.RegisterActions(EslintDisablesTaskName, evaluateEslintDisables)
	return nil
}

// RegisterReporters implements engine.Plugin.
func (p *Plugin) RegisterReporters(reporters *engine.ReporterRegistry) error {
	reporters.RegisterTaskReporter(EslintDisablesTaskName, reportEslintDisables)
	return nil
}

// RegisterTasks implements engine.Plugin.
func (p *Plugin) RegisterTasks(ctx engine.TaskContext, tasks *engine.TaskList) error {
	return tasks.RegisterTask(NewEslintDisablesTask(ctx))
}
