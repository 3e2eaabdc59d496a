package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/tasks"
)

func newTasksCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of the build",
		Long: `List the tasks of the root project and its subprojects, grouped by task
group. Ungrouped tasks are only shown with --all.`,
		Example: `  assemble tasks
  assemble tasks --all --json`,
		Args: cobra.NoArgs,
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

			root := arena.Root()
			var infos []task.Info
			for _, id := range root.AllTaskIDs() {
				info, err := root.Describe(id)
				if err != nil {
					return err
				}
				if info.Group == "" && !all {
					continue
				}
				infos = append(infos, info)
			}

			if jsonOutput {
				type entry struct {
					ID          string `json:"id"`
					Group       string `json:"group,omitempty"`
					Description string `json:"description,omitempty"`
				}
				out := make([]entry, len(infos))
				for i, info := range infos {
					out[i] = entry{ID: info.ID.String(), Group: info.Group, Description: info.Description}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			tasks.WriteReport(cmd.OutOrStdout(), root.ID().String(), infos, all)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include tasks without a group")
	return cmd
}
