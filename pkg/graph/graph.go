package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
)

// Node is a task in the graph.
type Node struct {
	ID   identifier.TaskID
	Exec *task.Executable
	// Level is the Kahn level; tasks on the same level have no path between them.
	Level int
	// Priority is the index of the first requested task this node serves.
	// Lower runs first when several nodes are ready.
	Priority int
}

// Edge orders From before To.
type Edge struct {
	From identifier.TaskID
	To   identifier.TaskID
	Kind task.OrderingKind
}

// ExecutionGraph is the immutable result of Build.
type ExecutionGraph struct {
	Nodes     map[identifier.TaskID]*Node
	Edges     []Edge
	Requested []identifier.TaskID
	// Order is a valid topological order.
	Order  []identifier.TaskID
	Levels [][]identifier.TaskID

	incoming map[identifier.TaskID][]Edge
	outgoing map[identifier.TaskID][]Edge
}

func (g *ExecutionGraph) index() {
	g.incoming = make(map[identifier.TaskID][]Edge)
	g.outgoing = make(map[identifier.TaskID][]Edge)
	for _, e := range g.Edges {
		g.incoming[e.To] = append(g.incoming[e.To], e)
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
	}
}

// Incoming returns edges ending at id.
func (g *ExecutionGraph) Incoming(id identifier.TaskID) []Edge {
	return g.incoming[id]
}

// Outgoing returns edges starting at id.
func (g *ExecutionGraph) Outgoing(id identifier.TaskID) []Edge {
	return g.outgoing[id]
}

// Contains reports whether id is part of the graph.
func (g *ExecutionGraph) Contains(id identifier.TaskID) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *ExecutionGraph) Len() int { return len(g.Nodes) }

// ToDOT renders the graph in Graphviz format, one cluster per level.
func (g *ExecutionGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			color := "white"
			if slices.Contains(g.Requested, id) {
				color = "lightblue"
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [fillcolor=\"%s\", style=\"filled,rounded\"];\n", id, color))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n", e.From, e.To, edgeStyle(e.Kind)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func edgeStyle(kind task.OrderingKind) string {
	switch kind {
	case task.DependsOn:
		return "style=solid, color=black"
	case task.FinalizedBy:
		return "style=dashed, color=blue"
	case task.RunsBefore, task.RunsAfter:
		return "style=dotted, color=gray"
	default:
		return "style=solid, color=black"
	}
}
