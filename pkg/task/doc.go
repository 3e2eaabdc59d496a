// Package task defines what a unit of build work is and how it relates to
// other units.
//
// A Task supplies behaviour. The Executable wraps it with everything the
// engine needs: extra actions, declared inputs and outputs, ordering
// constraints, up-to-date predicates and captured output. Projects create
// Executables lazily through a Factory and hand out a Handle that other
// tasks can depend on before the task exists.
//
// Orderings reference their targets through Buildable, which resolves to a
// set of task ids against a Lookup. Handles, task-output providers, file
// collections and plain id or name references are all Buildable.
package task
