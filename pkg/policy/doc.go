// Package policy lints build definitions with Open Policy Agent.
//
// Each policy is a Rego module defining a deny set. Entries are either a
// message string or an object:
//
//	deny contains {"task": t.id, "message": "...", "severity": "info"} if { ... }
//
// The input document lists every project and task of the definition with full
// ids, plus the ids references may resolve to:
//
//	{
//	  "projects": [{"id": ":app", "name": "app"}],
//	  "tasks": [{"id": ":app:compile", "project": ":app", "name": "compile", "type": "exec", ...}],
//	  "known": [":app:compile", ":app:tasks", ":app:clean"]
//	}
//
// Built-in policies check ordering references, exec task inputs and outputs,
// delete paths, copy destinations and task descriptions. Extra policies are
// loaded from .rego or .json files with Engine.LoadPolicies and may be
// reloaded on change with Loader.Watch.
//
// Usage:
//
//	eng, err := policy.NewEngine(logger)
//	result, err := eng.Evaluate(ctx, policy.NewInput(def, arena.AllTaskIDs()))
//	if err := result.Err(settings.Policy.FailOnWarning); err != nil {
//	    // report result.Violations
//	}
package policy
