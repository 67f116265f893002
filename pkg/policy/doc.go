// Package policy turns user-supplied rule files into action evaluators.
//
// Rules are written in Rego (evaluated with Open Policy Agent) or Starlark.
// Each rule targets one fully qualified task and maps that task's result to
// a list of actions, the same shape engine.ActionEvaluator returns.
//
// # Rego rules
//
// A Rego rule is a module that defines task and an actions set or array:
//
//	package checkup.eslint
//
//	import rego.v1
//
//	task := "javascript/eslint-disables"
//
//	actions contains action if {
//	    input.result.total >= object.get(input.config.options, "threshold", 2)
//	    action := {"name": "reduce-eslint-disable-usages", "summary": "..."}
//	}
//
// The input document is {"task", "result", "config": {"enabled", "options"}}.
//
// # Starlark rules
//
// A Starlark rule sets task and defines actions(result, config). It may use
// struct() and threshold(options, key, default):
//
//	task = "javascript/eslint-disables"
//
//	def actions(result, config):
//	    if result["total"] < threshold(config["options"], "threshold", 2):
//	        return []
//	    return [struct(name = "reduce-eslint-disable-usages", summary = "...")]
//
// # Usage
//
//	rules, err := policy.NewLoader(&logger).LoadFromPaths(ctx, []string{".checkup/rules"})
//	eng := policy.NewEngine(policy.EngineOptions{Logger: &logger})
//	for _, r := range rules {
//	    if err := eng.AddRule(ctx, r); err != nil {
//	        return err
//	    }
//	}
//	eng.RegisterActions(actionRegistry)
//
// Evaluation failures are logged and yield no actions, matching how an
// evaluator with missing input behaves.
package policy
