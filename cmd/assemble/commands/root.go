package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/telemetry"
)

var (
	// Global flags
	projectDir string
	buildFile  string
	logLevel   string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble - a task-graph build tool",
		Long: `Assemble runs the tasks of a multi-project build in dependency order.

Builds are declared in assemble.cue, assemble.hcl or build.star. Tasks are
skipped when their inputs and outputs are unchanged since the last run, and
independent tasks run in parallel.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				zerolog.SetGlobalLevel(telemetry.ParseLevel(logLevel))
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "p", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&buildFile, "build-file", "b", "", "build file (default: discovered in the project directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print output of successful tasks")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print failures and the summary")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCleanCacheCommand())

	return rootCmd
}
