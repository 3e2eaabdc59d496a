package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/assemble/assemble/pkg/config"
	"github.com/assemble/assemble/pkg/graph"
)

func newValidateCommand() *cobra.Command {
	var (
		strict     bool
		printDef   bool
		skipPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the build definition",
		Long: `Parse the build file, configure every task and build the graph of all tasks
to find unknown references and dependency cycles. The built-in and
configured Rego policies are then evaluated against the definition.`,
		Example: `  # Validate and fail on policy warnings too
  assemble validate --strict

  # Print the normalized definition as JSON
  assemble validate --print`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, sessionOptions{out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			def, arena, err := s.load(ctx)
			if err != nil {
				var defErr *config.DefinitionError
				if errors.As(err, &defErr) {
					for _, v := range defErr.Errors {
						fmt.Fprintf(out, "error   %s\n", v)
					}
					return fmt.Errorf("build definition has %d errors", len(defErr.Errors))
				}
				return err
			}
			log.Debug().Strs("files", def.SourceFiles).Str("format", def.Format).Msg("Parsed build definition")

			g, err := graph.Build(ctx, arena, arena.AllTaskIDs())
			if err != nil {
				return err
			}

			if printDef {
				data, err := config.ExportJSON(def)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			}

			if skipPolicy {
				fmt.Fprintf(out, "Build definition is valid: %d projects, %d tasks\n", len(arena.Projects()), g.Len())
				return nil
			}

			res, err := s.lint(ctx, def, arena)
			if err != nil {
				return fmt.Errorf("policy evaluation failed: %w", err)
			}
			failOnWarning := strict || s.settings.Policy.FailOnWarning
			if jsonOutput {
				if err := writeJSON(out, res); err != nil {
					return err
				}
				return res.Err(failOnWarning)
			}

			s.reporter().Violations(res.Violations)
			if err := res.Err(failOnWarning); err != nil {
				return err
			}
			fmt.Fprintf(out, "Build definition is valid: %d projects, %d tasks, %d policies evaluated\n",
				len(arena.Projects()), g.Len(), len(res.EvaluatedPolicies))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat policy warnings as errors")
	cmd.Flags().BoolVar(&printDef, "print", false, "print the parsed definition as JSON")
	cmd.Flags().BoolVar(&skipPolicy, "no-policy", false, "skip policy evaluation")
	return cmd
}
