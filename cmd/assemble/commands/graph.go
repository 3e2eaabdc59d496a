package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/graph"
)

func newGraphCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph <tasks...>",
		Short: "Show the execution graph of tasks",
		Long: `Build the execution graph for the named tasks without running anything.

The default output lists the graph level by level; tasks on the same level
may run in parallel. --dot prints Graphviz input; depends_on edges are
solid, finalized_by edges dashed and ordering-only edges dotted.`,
		Example: `  assemble graph build
  assemble graph build --dot | dot -Tsvg > build.svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, sessionOptions{out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer s.Close()

			_, arena, err := s.load(ctx)
			if err != nil {
				return err
			}
			requested, err := resolveTasks(arena, args)
			if err != nil {
				return err
			}
			g, err := graph.Build(ctx, arena, requested)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				fmt.Fprint(out, g.ToDOT())
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(graphJSON(g))
			default:
				for i, level := range g.Levels {
					names := make([]string, len(level))
					for j, id := range level {
						names[j] = id.String()
					}
					fmt.Fprintf(out, "Level %d: %s\n", i, strings.Join(names, ", "))
				}
				fmt.Fprintf(out, "%d tasks, %d edges\n", g.Len(), len(g.Edges))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the graph in Graphviz DOT format")
	return cmd
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type graphView struct {
	Requested []string    `json:"requested"`
	Order     []string    `json:"order"`
	Levels    [][]string  `json:"levels"`
	Edges     []graphEdge `json:"edges"`
}

func graphJSON(g *graph.ExecutionGraph) graphView {
	v := graphView{Edges: make([]graphEdge, 0, len(g.Edges))}
	for _, id := range g.Requested {
		v.Requested = append(v.Requested, id.String())
	}
	for _, id := range g.Order {
		v.Order = append(v.Order, id.String())
	}
	for _, level := range g.Levels {
		names := make([]string, len(level))
		for i, id := range level {
			names[i] = id.String()
		}
		v.Levels = append(v.Levels, names)
	}
	for _, e := range g.Edges {
		v.Edges = append(v.Edges, graphEdge{From: e.From.String(), To: e.To.String(), Kind: string(e.Kind)})
	}
	return v
}
