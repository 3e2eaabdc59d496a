// Package engine holds the vocabulary shared by every layer of the build
// engine: classified errors, task outcomes and per-task results.
//
// # Errors
//
// Every failure surfaced by the engine is an *EngineError carrying a class and
// a stable code:
//
//   - configuration: duplicate ids, unknown or ambiguous task references,
//     failing configuration closures and dependency cycles
//   - provider: a lazy value was read before it was set
//   - task: an action, a listener or the input snapshot of a task failed
//   - internal: broken invariants and cache I/O
//
// Callers test for a specific failure with HasCode or errors.Is:
//
//	if engine.HasCode(err, engine.ErrCodeCyclicDependency) {
//	    var cycle *engine.CycleError
//	    errors.As(err, &cycle)
//	}
//
// # Outcomes
//
// A task ends a run with exactly one Outcome. EXECUTED, UP-TO-DATE,
// NO-SOURCE and STOPPED are successful and unblock dependents; SKIPPED and
// FAILED are not.
package engine
