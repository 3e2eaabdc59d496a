// Package executor runs an execution graph on a bounded pool of workers.
//
// A single dispatcher goroutine owns the plan: it moves nodes from pending to
// ready, hands ready nodes to workers over an unbuffered channel and receives
// results over another. Workers never touch the plan, so the happens-before
// edge between a dependency finishing and its dependent starting is the
// result channel.
//
// Ready nodes are ordered by the index of the requested task they serve, then
// by task id. Before running a task the worker snapshots its inputs and asks
// the work package whether the previous execution is still valid.
//
// Listener hooks and event subscribers are called from worker goroutines and
// must be safe for concurrent use.
package executor
