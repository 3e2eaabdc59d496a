package executor

import (
	"container/heap"

	"github.com/assemble/assemble/pkg/graph"
)

// readyQueue orders ready nodes by priority, then by task id.
type readyQueue []*graph.Node

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return rank(q[i].Priority) < rank(q[j].Priority)
	}
	return q[i].ID.Less(q[j].ID)
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*graph.Node)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q *readyQueue) push(n *graph.Node) { heap.Push(q, n) }

func (q *readyQueue) pop() *graph.Node { return heap.Pop(q).(*graph.Node) }

// rank sorts nodes that serve no requested task (priority -1) last.
func rank(p int) int {
	if p < 0 {
		return int(^uint(0) >> 1)
	}
	return p
}
