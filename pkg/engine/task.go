package engine

// BaseTask carries the identity and resolved config shared by task
// implementations. Concrete tasks embed it and add Run.
type BaseTask struct {
	name        string
	pluginName  string
	displayName string
	category    string
	group       string
	config      TaskConfig
	context     TaskContext
}

// TaskIdentity describes a task for NewBaseTask.
type TaskIdentity struct {
	Name        string
	PluginName  string
	DisplayName string
	Category    string
	Group       string
}

// NewBaseTask resolves the task's config from the context by its fully
// qualified name.
func NewBaseTask(id TaskIdentity, ctx TaskContext) BaseTask {
	displayName := id.DisplayName
	if displayName == "" {
		displayName = id.Name
	}
	return BaseTask{
		name:        id.Name,
		pluginName:  id.PluginName,
		displayName: displayName,
		category:    id.Category,
		group:       id.Group,
		config:      ctx.TaskConfig(id.PluginName + "/" + id.Name),
		context:     ctx,
	}
}

// Name implements Task.
func (b *BaseTask) Name() string { return b.name }

// PluginName implements Task.
func (b *BaseTask) PluginName() string { return b.pluginName }

// DisplayName implements Task.
func (b *BaseTask) DisplayName() string { return b.displayName }

// Category implements Task.
func (b *BaseTask) Category() string { return b.category }

// Group implements Task.
func (b *BaseTask) Group() string { return b.group }

// Config implements Task. The options map is copied.
func (b *BaseTask) Config() TaskConfig {
	return TaskConfig{Enabled: b.config.Enabled, Options: cloneOptions(b.config.Options)}
}

// Context returns the task context the task was built with.
func (b *BaseTask) Context() TaskContext { return b.context }
