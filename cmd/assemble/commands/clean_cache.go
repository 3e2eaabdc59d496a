package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/stores"
)

func newCleanCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean-cache",
		Short: "Forget recorded task histories",
		Long: `Remove the recorded inputs and outputs of every task so the next run
executes all of them. Run history is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, sessionOptions{lock: true, stores: true, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			switch store := s.store.(type) {
			case *stores.SQLiteStore:
				n, err := store.ClearHistory(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d task histories\n", n)
			default:
				if err := s.files.Clear(); err != nil {
					return fmt.Errorf("failed to clear task cache: %w", err)
				}
				fmt.Fprintf(out, "Removed task cache %s\n", s.resolve(s.settings.Cache.Path, s.ws.CachePath()))
			}
			return nil
		},
	}
	return cmd
}
