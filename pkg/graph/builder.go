package graph

import (
	"context"
	"slices"
	"strings"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
)

// Resolver resolves executables and task references.
type Resolver interface {
	task.Lookup
	Resolve(id identifier.TaskID) (*task.Executable, error)
}

// Sealer is implemented by resolvers whose task containers can be closed
// to further registration. Build seals them once the graph is valid.
type Sealer interface {
	Seal()
}

// Builder builds an ExecutionGraph. A Builder is single use.
type Builder struct {
	resolver Resolver

	nodes     map[identifier.TaskID]*Node
	orderings map[identifier.TaskID]map[task.OrderingKind][]identifier.TaskID

	edges   []Edge
	edgeSet map[Edge]struct{}

	// adjacencyList maps a task to the tasks that must wait for it
	adjacencyList map[identifier.TaskID][]identifier.TaskID
	inDegree      map[identifier.TaskID]int
	levels        [][]identifier.TaskID
}

// NewBuilder creates a builder backed by resolver.
func NewBuilder(resolver Resolver) *Builder {
	return &Builder{
		resolver:      resolver,
		nodes:         make(map[identifier.TaskID]*Node),
		orderings:     make(map[identifier.TaskID]map[task.OrderingKind][]identifier.TaskID),
		edgeSet:       make(map[Edge]struct{}),
		adjacencyList: make(map[identifier.TaskID][]identifier.TaskID),
		inDegree:      make(map[identifier.TaskID]int),
	}
}

// Build is shorthand for NewBuilder(resolver).Build(ctx, requested).
func Build(ctx context.Context, resolver Resolver, requested []identifier.TaskID) (*ExecutionGraph, error) {
	return NewBuilder(resolver).Build(ctx, requested)
}

// Build resolves the requested tasks and everything they pull in, then
// validates the graph.
func (b *Builder) Build(ctx context.Context, requested []identifier.TaskID) (*ExecutionGraph, error) {
	requested = dedupe(requested)

	if err := b.collect(ctx, requested); err != nil {
		return nil, err
	}

	b.addEdges()

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	b.assignPriorities(requested)

	if s, ok := b.resolver.(Sealer); ok {
		s.Seal()
	}
	return b.buildExecutionGraph(requested), nil
}

// collect walks pulling orderings breadth first from the requested tasks.
func (b *Builder) collect(ctx context.Context, requested []identifier.TaskID) error {
	queue := slices.Clone(requested)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]
		if _, seen := b.nodes[id]; seen {
			continue
		}

		exec, err := b.resolver.Resolve(id)
		if err != nil {
			return err
		}
		var lookup task.Lookup = b.resolver
		if exec.Project() != nil {
			lookup = exec.Project()
		}
		resolved, err := task.ResolveOrderings(exec, lookup)
		if err != nil {
			return err
		}

		b.nodes[id] = &Node{ID: id, Exec: exec, Priority: -1}
		b.orderings[id] = resolved
		b.adjacencyList[id] = nil
		b.inDegree[id] = 0

		for _, kind := range []task.OrderingKind{task.DependsOn, task.FinalizedBy} {
			for _, target := range resolved[kind] {
				if _, seen := b.nodes[target]; !seen {
					queue = append(queue, target)
				}
			}
		}
	}
	return nil
}

func (b *Builder) addEdges() {
	for _, id := range b.sortedIDs() {
		ords := b.orderings[id]
		for _, dep := range ords[task.DependsOn] {
			b.addEdge(dep, id, task.DependsOn)
		}
		for _, fin := range ords[task.FinalizedBy] {
			b.addEdge(id, fin, task.FinalizedBy)
		}
		for _, other := range ords[task.RunsAfter] {
			if _, ok := b.nodes[other]; ok {
				b.addEdge(other, id, task.RunsAfter)
			}
		}
		for _, other := range ords[task.RunsBefore] {
			if _, ok := b.nodes[other]; ok {
				b.addEdge(id, other, task.RunsBefore)
			}
		}
	}
}

func (b *Builder) addEdge(from, to identifier.TaskID, kind task.OrderingKind) {
	e := Edge{From: from, To: to, Kind: kind}
	if _, dup := b.edgeSet[e]; dup {
		return
	}
	b.edgeSet[e] = struct{}{}
	b.edges = append(b.edges, e)
	if !slices.Contains(b.adjacencyList[from], to) {
		b.adjacencyList[from] = append(b.adjacencyList[from], to)
		b.inDegree[to]++
	}
}

// detectCycles uses depth-first search to detect circular orderings.
func (b *Builder) detectCycles() error {
	visited := make(map[identifier.TaskID]bool)
	recStack := make(map[identifier.TaskID]bool)

	for _, id := range b.sortedIDs() {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			cerr := &engine.CycleError{Cycle: cycle}
			return engine.NewConfigurationError(engine.ErrCodeCyclicDependency,
				"circular dependency detected: "+formatCycle(cycle), cerr)
		}
	}
	return nil
}

func (b *Builder) detectCyclesUtil(
	id identifier.TaskID,
	visited map[identifier.TaskID]bool,
	recStack map[identifier.TaskID]bool,
	path []identifier.TaskID,
) []identifier.TaskID {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, next := range sortedCopy(b.adjacencyList[id]) {
		if !visited[next] {
			if cycle := b.detectCyclesUtil(next, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[next] {
			start := slices.Index(path, next)
			cycle := slices.Clone(path[start:])
			return append(cycle, next)
		}
	}

	recStack[id] = false
	return nil
}

// computeLevels assigns Kahn levels.
func (b *Builder) computeLevels() error {
	inDegree := make(map[identifier.TaskID]int, len(b.inDegree))
	for id, d := range b.inDegree {
		inDegree[id] = d
	}

	var current []identifier.TaskID
	for _, id := range b.sortedIDs() {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	processed := 0
	for len(current) > 0 {
		b.levels = append(b.levels, current)
		processed += len(current)

		var next []identifier.TaskID
		for _, id := range current {
			for _, dependent := range b.adjacencyList[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = sortedCopy(next)
	}

	if processed != len(b.nodes) {
		return engine.NewInternalError(engine.ErrCodeInternal,
			"failed to order all tasks", nil)
	}
	return nil
}

// assignPriorities marks each node with the first requested task that
// pulls it in.
func (b *Builder) assignPriorities(requested []identifier.TaskID) {
	for i, root := range requested {
		stack := []identifier.TaskID{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			node := b.nodes[id]
			if node == nil || node.Priority >= 0 {
				continue
			}
			node.Priority = i
			stack = append(stack, b.orderings[id][task.DependsOn]...)
			stack = append(stack, b.orderings[id][task.FinalizedBy]...)
		}
	}
}

func (b *Builder) buildExecutionGraph(requested []identifier.TaskID) *ExecutionGraph {
	g := &ExecutionGraph{
		Nodes:     b.nodes,
		Edges:     b.edges,
		Requested: requested,
		Levels:    b.levels,
	}
	for level, ids := range b.levels {
		for _, id := range ids {
			g.Nodes[id].Level = level
			g.Order = append(g.Order, id)
		}
	}
	g.index()
	return g
}

func (b *Builder) sortedIDs() []identifier.TaskID {
	ids := make([]identifier.TaskID, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	return sortedCopy(ids)
}

func sortedCopy(ids []identifier.TaskID) []identifier.TaskID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b identifier.TaskID) int { return a.Compare(b.ID) })
	return out
}

func dedupe(ids []identifier.TaskID) []identifier.TaskID {
	var out []identifier.TaskID
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func formatCycle(cycle []identifier.TaskID) string {
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}

