package engine

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func thresholdEvaluator(rule ThresholdRule) ActionEvaluator {
	return func(result *TaskResult, config TaskConfig) []Action {
		payload, _ := result.Result.(map[string]interface{})
		metric, _ := payload["value"].(float64)
		return rule.Evaluate(metric, config)
	}
}

var usageRule = ThresholdRule{
	Name:             "reduce-usages",
	Summary:          "Reduce number of usages",
	DefaultThreshold: 2,
	Details:          func(m float64) string { return fmt.Sprintf("%v usages", m) },
	Items:            func(m float64) []string { return []string{fmt.Sprintf("Total usages: %v", m)} },
}

func TestThresholdRule_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		metric    float64
		options   map[string]interface{}
		wantCount int
	}{
		{"above default", 4, nil, 1},
		{"below default", 1, nil, 0},
		{"equal to default", 2, nil, 1},
		{"option raises threshold", 4, map[string]interface{}{"threshold": 10.0}, 0},
		{"option lowers threshold", 1, map[string]interface{}{"threshold": 1}, 1},
		{"non numeric option falls back", 4, map[string]interface{}{"threshold": "lots"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := usageRule.Evaluate(tt.metric, TaskConfig{Enabled: true, Options: tt.options})
			if len(actions) != tt.wantCount {
				t.Fatalf("Expected %d actions, got %d", tt.wantCount, len(actions))
			}
		})
	}
}

func TestThresholdRule_ActionShape(t *testing.T) {
	actions := usageRule.Evaluate(4, TaskConfig{Enabled: true})
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(actions))
	}

	want := Action{
		Name:             "reduce-usages",
		Summary:          "Reduce number of usages",
		Details:          "4 usages",
		Input:            4,
		DefaultThreshold: 2,
		Items:            []string{"Total usages: 4"},
	}
	if diff := cmp.Diff(want, actions[0]); diff != "" {
		t.Errorf("action mismatch (-want +got):\n%s", diff)
	}
}

func TestThresholdFromOptions(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]interface{}
		want    float64
	}{
		{"absent", nil, 2},
		{"float", map[string]interface{}{"threshold": 5.5}, 5.5},
		{"int", map[string]interface{}{"threshold": 3}, 3},
		{"numeric string", map[string]interface{}{"threshold": "7"}, 7},
		{"bool", map[string]interface{}{"threshold": true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThresholdFromOptions(tt.options, "threshold", 2); got != tt.want {
				t.Errorf("ThresholdFromOptions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActionRegistry_EvaluateActions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks["p/tuned"] = Tuple(TaskStateOn, map[string]interface{}{"threshold": 100.0})
	ctx := NewTaskContext(TaskContextOptions{Config: cfg})

	high := newFakeTask("p", "high")
	high.payload = map[string]interface{}{"value": 4.0}
	low := newFakeTask("p", "low")
	low.payload = map[string]interface{}{"value": 1.0}
	tuned := newFakeTask("p", "tuned").withContext(ctx)
	tuned.payload = map[string]interface{}{"value": 4.0}
	noResult := newFakeTask("p", "noresult")

	list := NewTaskList(nil)
	for _, task := range []Task{high, low, tuned, noResult} {
		if err := list.RegisterTask(task); err != nil {
			t.Fatalf("RegisterTask() error = %v", err)
		}
	}

	registry := NewActionRegistry(nil)
	registry.RegisterActions("p/low", thresholdEvaluator(usageRule))
	registry.RegisterActions("p/high", thresholdEvaluator(usageRule))
	registry.RegisterActions("p/tuned", thresholdEvaluator(usageRule))
	registry.RegisterActions("p/noresult", thresholdEvaluator(usageRule))
	registry.RegisterActions("p/unregistered", thresholdEvaluator(usageRule))

	results := []*TaskResult{
		NewTaskResult(high, high.payload),
		NewTaskResult(low, low.payload),
		NewTaskResult(tuned, tuned.payload),
	}

	actions := registry.EvaluateActions(list, results)

	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d: %+v", len(actions), actions)
	}
	if actions[0].Input != 4 {
		t.Errorf("Expected input 4, got %v", actions[0].Input)
	}
}

func TestActionRegistry_PreservesEvaluatorOrder(t *testing.T) {
	first := newFakeTask("p", "first")
	second := newFakeTask("p", "second")
	list := NewTaskList(nil)
	for _, task := range []Task{first, second} {
		if err := list.RegisterTask(task); err != nil {
			t.Fatalf("RegisterTask() error = %v", err)
		}
	}

	named := func(name string) ActionEvaluator {
		return func(*TaskResult, TaskConfig) []Action {
			return []Action{{Name: name, Summary: name}}
		}
	}

	registry := NewActionRegistry(nil)
	registry.RegisterActions("p/second", named("second"))
	registry.RegisterActions("p/first", named("first"))
	registry.RegisterActions("p/second", named("second-again"))

	results := []*TaskResult{NewTaskResult(first, nil), NewTaskResult(second, nil)}

	var got []string
	for _, action := range registry.EvaluateActions(list, results) {
		got = append(got, action.Name)
	}

	want := []string{"second", "first", "second-again"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p/second", "p/first", "p/second"}, registry.TaskNames()); diff != "" {
		t.Errorf("TaskNames mismatch (-want +got):\n%s", diff)
	}
}

func TestActionRegistry_DropsInvalidActions(t *testing.T) {
	task := newFakeTask("p", "t")
	list := NewTaskList(nil)
	if err := list.RegisterTask(task); err != nil {
		t.Fatalf("RegisterTask() error = %v", err)
	}

	registry := NewActionRegistry(nil)
	registry.RegisterActions("p/t", func(*TaskResult, TaskConfig) []Action {
		return []Action{{Summary: "missing name"}, {Name: "ok", Summary: "fine"}}
	})

	actions := registry.EvaluateActions(list, []*TaskResult{NewTaskResult(task, nil)})
	if len(actions) != 1 || actions[0].Name != "ok" {
		t.Fatalf("Expected only the valid action, got %+v", actions)
	}
}
