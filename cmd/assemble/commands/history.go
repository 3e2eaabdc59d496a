package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit     int
		events    bool
		deleteRun string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous runs",
		Long: `Show recorded runs, newest first. With a run id the task results of that
run are listed instead, and --events adds its lifecycle events.`,
		Example: `  assemble history
  assemble history 3f6c0a9e-5b1d-4f57-9a43-1f0c2b7e8d11 --events
  assemble history --delete 3f6c0a9e-5b1d-4f57-9a43-1f0c2b7e8d11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, sessionOptions{stores: true, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if deleteRun != "" {
				if err := s.runs.DeleteRun(ctx, deleteRun); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted run %s\n", deleteRun)
				return nil
			}

			if len(args) == 0 {
				runs, err := s.runs.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, runs)
				}
				writeRuns(out, runs)
				return nil
			}

			run, err := s.runs.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := s.runs.ListTaskResults(ctx, run.ID)
			if err != nil {
				return err
			}
			var evs []*stores.EventRecord
			if events {
				if evs, err = s.runs.ListEvents(ctx, run.ID, 0); err != nil {
					return err
				}
			}
			if jsonOutput {
				return writeJSON(out, map[string]any{"run": run, "tasks": results, "events": evs})
			}
			writeRun(out, run, results, evs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&events, "events", false, "include lifecycle events of the run")
	cmd.Flags().StringVar(&deleteRun, "delete", "", "delete a run and its task results")
	return cmd
}

func writeRuns(w io.Writer, runs []*stores.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tDURATION\tTASKS\tFAILED\tREQUESTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status,
			r.Duration.Round(time.Millisecond), r.Total, r.Failed, strings.Join(r.Requested, " "))
	}
	tw.Flush()
}

func writeRun(w io.Writer, run *stores.Run, results []*stores.TaskRecord, events []*stores.EventRecord) {
	fmt.Fprintf(w, "Run %s: %s in %s (requested %s)\n\n",
		run.ID, run.Status, run.Duration.Round(time.Millisecond), strings.Join(run.Requested, " "))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tOUTCOME\tDURATION\tDETAIL")
	for _, r := range results {
		detail := r.Reason
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.TaskID, r.Outcome, r.Duration().Round(time.Millisecond), firstLine(detail))
	}
	tw.Flush()

	if len(events) > 0 {
		fmt.Fprintln(w)
		for _, e := range events {
			fmt.Fprintf(w, "%s  %-15s %s\n", e.CreatedAt.Local().Format("15:04:05.000"), e.Type, e.Message)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
