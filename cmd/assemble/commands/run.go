package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/executor"
	"github.com/assemble/assemble/pkg/graph"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/watch"
)

// defaultTask runs when no task is named.
const defaultTask = "tasks"

type runOptions struct {
	workers int
	mode    engine.FailureMode
}

func newRunCommand() *cobra.Command {
	var (
		workers     int
		noParallel  bool
		keepGoing   bool
		continuous  bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run [tasks...]",
		Short: "Run tasks and everything they depend on",
		Long: `Run the named tasks after the tasks they depend on.

Task names may be absolute (:app:lib:test), relative to the root project
(lib:test) or bare (test), in which case every project is searched and the
name must be unambiguous. Tasks whose inputs and outputs are unchanged since
their last successful run are reported UP-TO-DATE and not executed.

Without --continue the build stops scheduling new tasks after the first
failure. Finalizers of tasks that already ran are still executed.`,
		Example: `  # Build the default lifecycle task
  assemble run build

  # Run tests of one subproject with four workers
  assemble run lib:test -J 4

  # Keep going after failures and rebuild whenever sources change
  assemble run build --continue --continuous`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, sessionOptions{lock: true, stores: true, metricsAddr: metricsAddr, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer s.Close()

			opts := runOptions{workers: s.settings.Workers, mode: engine.FailFast}
			if cmd.Flags().Changed("workers") {
				opts.workers = workers
			}
			if noParallel {
				opts.workers = 1
			}
			if keepGoing || s.settings.ContinueOnFailure {
				opts.mode = engine.ContinueOnFailure
			}

			if metricsAddr != "" {
				if err := s.tel.Metrics.Serve(ctx, metricsAddr); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			if continuous {
				return s.runContinuous(ctx, args, opts)
			}
			_, err = s.runOnce(ctx, args, opts)
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "J", 0, "number of parallel workers (default: one per CPU)")
	cmd.Flags().BoolVar(&noParallel, "no-parallel", false, "run one task at a time")
	cmd.Flags().BoolVar(&keepGoing, "continue", false, "keep running independent tasks after a failure")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "rebuild whenever files in the workspace change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.MarkFlagsMutuallyExclusive("workers", "no-parallel")

	return cmd
}

// runOnce loads the build, checks policies and executes the requested tasks.
// A failed build is returned as an error after the summary is printed.
func (s *session) runOnce(ctx context.Context, names []string, opts runOptions) (*executor.Report, error) {
	def, arena, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	rep := s.reporter()
	if err := s.checkPolicies(ctx, def, arena, rep); err != nil {
		return nil, err
	}

	requested, err := resolveTasks(arena, names)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(ctx, arena, requested)
	if err != nil {
		return nil, err
	}

	exec := executor.New(executor.Options{
		Workers:     opts.workers,
		FailureMode: opts.mode,
		Store:       s.store,
		Listeners:   []executor.Listener{rep},
		Recorder:    s.runs,
		Telemetry:   s.tel,
	})
	s.log.WithFields(map[string]interface{}{
		"tasks":   len(g.Nodes),
		"workers": exec.Workers(),
		"mode":    string(opts.mode),
	}).Debug("Executing graph")

	report, err := exec.Run(ctx, g)
	if err != nil {
		return nil, err
	}
	rep.Summary(report)
	return report, report.Err()
}

// runContinuous rebuilds after every debounced batch of file changes until
// the context is cancelled. Build directories are not watched.
func (s *session) runContinuous(ctx context.Context, names []string, opts runOptions) error {
	_, arena, err := s.load(ctx)
	if err != nil {
		return err
	}

	w, err := watch.New(s.ws.Root(), watch.Options{
		Debounce: time.Duration(s.settings.Watch.DebounceMS) * time.Millisecond,
		Ignore:   append(buildDirPatterns(s.ws.Root(), arena), s.settings.Watch.Ignore...),
		Logger:   s.tel.Logger.NewComponentLogger("watch"),
	})
	if err != nil {
		return err
	}
	defer w.Close()

	rep := s.reporter()
	return watch.Loop(ctx, w, func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			rep.Printf("\nChange detected: %s\n", strings.Join(changed, ", "))
		}
		_, err := s.runOnce(ctx, names, opts)
		rep.Printf("Waiting for changes to input files... (ctrl-c to exit)\n")
		return err
	}, func(err error) {
		s.log.WithError(err).Error("Build failed")
	})
}

// resolveTasks turns command-line names into task ids. No names selects
// the root project's task report.
func resolveTasks(arena *project.Arena, names []string) ([]identifier.TaskID, error) {
	if len(names) == 0 {
		names = []string{defaultTask}
	}
	ids := make([]identifier.TaskID, 0, len(names))
	for _, name := range names {
		id, err := arena.FindTaskID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildDirPatterns(root string, arena *project.Arena) []string {
	var patterns []string
	for _, p := range arena.Projects() {
		dir, err := p.BuildDir().FallibleGet()
		if err != nil {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(p.Dir(), dir)
		}
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		patterns = append(patterns, rel)
	}
	return patterns
}
