package engine

import (
	"context"
	"sync"
)

// TaskList is an ordered, name-indexed collection of tasks for one run.
type TaskList struct {
	mu     sync.RWMutex
	tasks  []Task
	byName map[string]Task
	runner *Runner
}

// NewTaskList creates an empty task list that runs tasks with runner.
// A nil runner uses NewRunner with default options.
func NewTaskList(runner *Runner) *TaskList {
	if runner == nil {
		runner = NewRunner(RunnerOptions{})
	}
	return &TaskList{
		byName: make(map[string]Task),
		runner: runner,
	}
}

// RegisterTask appends a task. Registering a fully qualified name twice is an error.
func (l *TaskList) RegisterTask(task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := FullyQualifiedName(task)
	if _, exists := l.byName[name]; exists {
		return NewCheckupError(ErrorKindDuplicateTask, ErrorOptions{TaskName: name})
	}

	l.tasks = append(l.tasks, task)
	l.byName[name] = task
	return nil
}

// FindTask looks up a task by fully qualified name.
func (l *TaskList) FindTask(fullyQualifiedName string) (Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	task, ok := l.byName[fullyQualifiedName]
	return task, ok
}

// FindTasks partitions names into resolved tasks and unresolved names,
// preserving input order.
func (l *TaskList) FindTasks(names ...string) (tasksFound []Task, tasksNotFound []string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tasksFound = make([]Task, 0, len(names))
	tasksNotFound = make([]string, 0)
	for _, name := range names {
		if task, ok := l.byName[name]; ok {
			tasksFound = append(tasksFound, task)
		} else {
			tasksNotFound = append(tasksNotFound, name)
		}
	}
	return tasksFound, tasksNotFound
}

// FullyQualifiedTaskNames returns the registered names in registration order.
func (l *TaskList) FullyQualifiedTaskNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.tasks))
	for _, task := range l.tasks {
		names = append(names, FullyQualifiedName(task))
	}
	return names
}

// Tasks returns the registered tasks in registration order.
func (l *TaskList) Tasks() []Task {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]Task{}, l.tasks...)
}

// Len returns the number of registered tasks.
func (l *TaskList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.tasks)
}

// RunTasks runs every registered task.
func (l *TaskList) RunTasks(ctx context.Context) ([]*TaskResult, []TaskError) {
	return l.runner.Run(ctx, l.Tasks())
}

// RunSubset runs exactly the given tasks. An empty subset runs nothing.
func (l *TaskList) RunSubset(ctx context.Context, tasks []Task) ([]*TaskResult, []TaskError) {
	if len(tasks) == 0 {
		return []*TaskResult{}, []TaskError{}
	}
	return l.runner.Run(ctx, tasks)
}

// MetaTaskList holds always-run tasks that provide project metadata. It is
// never filtered by --task.
type MetaTaskList struct {
	list *TaskList
}

// NewMetaTaskList creates an empty meta task list.
func NewMetaTaskList(runner *Runner) *MetaTaskList {
	return &MetaTaskList{list: NewTaskList(runner)}
}

// RegisterTask appends a meta task.
func (m *MetaTaskList) RegisterTask(task Task) error {
	return m.list.RegisterTask(task)
}

// FindTask looks up a meta task by fully qualified name.
func (m *MetaTaskList) FindTask(fullyQualifiedName string) (Task, bool) {
	return m.list.FindTask(fullyQualifiedName)
}

// FindTasks partitions names into meta tasks and unresolved names.
func (m *MetaTaskList) FindTasks(names ...string) ([]Task, []string) {
	return m.list.FindTasks(names...)
}

// FullyQualifiedTaskNames returns the meta task names in registration order.
func (m *MetaTaskList) FullyQualifiedTaskNames() []string {
	return m.list.FullyQualifiedTaskNames()
}

// RunTasks runs every meta task.
func (m *MetaTaskList) RunTasks(ctx context.Context) ([]*TaskResult, []TaskError) {
	return m.list.RunTasks(ctx)
}
