package policy

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/checkupjs/checkup/pkg/engine"
)

// StarlarkEvaluator runs Starlark action rules. A rule script defines
// actions(result, config) returning a list of action dicts or structs, and
// may set a top-level task string.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultEvalTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Inspect executes the script's top level and returns its task value,
// which may be empty. It fails when actions is not defined.
func (se *StarlarkEvaluator) Inspect(ctx context.Context, filename, script string) (string, error) {
	thread, release := se.newThread(ctx)
	defer release()

	globals, err := se.exec(thread, filename, script)
	if err != nil {
		return "", err
	}

	if _, ok := globals["actions"].(starlark.Callable); !ok {
		return "", fmt.Errorf("script does not define actions(result, config)")
	}

	task := ""
	if v, ok := globals["task"]; ok {
		s, ok := v.(starlark.String)
		if !ok {
			return "", fmt.Errorf("task must be a string, got %s", v.Type())
		}
		task = string(s)
	}
	return task, nil
}

// CallActions executes the script and calls actions with the input's result
// and config. The returned value is converted to Go values.
func (se *StarlarkEvaluator) CallActions(ctx context.Context, filename, script string, input ActionInput) (interface{}, error) {
	thread, release := se.newThread(ctx)
	defer release()

	globals, err := se.exec(thread, filename, script)
	if err != nil {
		return nil, err
	}

	fn, ok := globals["actions"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("script does not define actions(result, config)")
	}

	result, err := toStarlarkValue(input.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	config, err := toStarlarkValue(input.Map()["config"])
	if err != nil {
		return nil, fmt.Errorf("failed to convert config: %w", err)
	}

	out, err := starlark.Call(thread, fn, starlark.Tuple{result, config}, nil)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	return fromStarlarkValue(out)
}

// newThread returns a thread that is cancelled when ctx ends or the
// evaluator timeout passes. The release function must be called.
func (se *StarlarkEvaluator) newThread(ctx context.Context) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name: "checkup-rule",
		Print: func(_ *starlark.Thread, msg string) {
			// Rules have no output channel
		},
	}

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(fmt.Sprintf("execution timeout after %v", se.timeout))
	})
	return thread, func() {
		stop()
		cancel()
	}
}

// exec runs the script's top level on thread.
func (se *StarlarkEvaluator) exec(thread *starlark.Thread, filename, script string) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct":    starlark.NewBuiltin("struct", starlarkstruct.Make),
		"threshold": starlark.NewBuiltin("threshold", builtinThreshold),
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	return globals, nil
}

// builtinThreshold implements threshold(options, key, default), reading a
// numeric threshold the way engine.ThresholdFromOptions does.
func builtinThreshold(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var options starlark.Value
	var key string
	var def starlark.Value

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "options", &options, "key", &key, "default", &def); err != nil {
		return nil, err
	}

	defValue, ok := starlark.AsFloat(def)
	if !ok {
		return nil, fmt.Errorf("%s: default must be a number, got %s", b.Name(), def.Type())
	}

	goOptions, err := fromStarlarkValue(options)
	if err != nil {
		return nil, err
	}
	opts, _ := goOptions.(map[string]interface{})

	return starlark.Float(engine.ThresholdFromOptions(opts, key, defValue)), nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
