// Package graph turns requested task ids into an immutable ExecutionGraph.
//
// Starting from the requested tasks, the builder follows DependsOn and
// FinalizedBy orderings until no new task appears. RunsBefore and RunsAfter
// never add tasks; they only produce edges between tasks already present.
//
// Every edge is normalized so that From must finish before To starts:
//
//	T DependsOn D    D -> T
//	T FinalizedBy F  T -> F
//	T RunsAfter X    X -> T
//	T RunsBefore X   T -> X
//
// Cycles are reported with the full path, for example
// ":root:a -> :root:b -> :root:a".
package graph
