package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// fakeTask is a configurable Task used across the engine tests.
type fakeTask struct {
	BaseTask

	payload interface{}
	err     error
	panics  bool
	noop    bool
	delay   time.Duration

	runs *int32
}

func newFakeTask(plugin, name string) *fakeTask {
	return &fakeTask{
		BaseTask: NewBaseTask(TaskIdentity{
			Name:        name,
			PluginName:  plugin,
			DisplayName: name + " display",
			Category:    "metrics",
		}, NewTaskContext(TaskContextOptions{})),
		payload: map[string]interface{}{"value": 1},
		runs:    new(int32),
	}
}

func (f *fakeTask) withContext(ctx TaskContext) *fakeTask {
	f.BaseTask = NewBaseTask(TaskIdentity{
		Name:        f.Name(),
		PluginName:  f.PluginName(),
		DisplayName: f.DisplayName(),
		Category:    f.Category(),
	}, ctx)
	return f
}

func (f *fakeTask) Run(ctx context.Context) (*TaskResult, error) {
	atomic.AddInt32(f.runs, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.noop {
		return nil, nil
	}
	return NewTaskResult(f, f.payload), nil
}

func (f *fakeTask) runCount() int {
	return int(atomic.LoadInt32(f.runs))
}
