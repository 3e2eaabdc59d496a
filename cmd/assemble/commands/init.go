package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/assemble/assemble/pkg/config"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/stores"
	"github.com/assemble/assemble/pkg/workspace"
)

func newInitCommand() *cobra.Command {
	var (
		format string
		name   string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an Assemble workspace",
		Long: `Initialize a workspace with a sample build file, an assemble.yaml settings
file and the .assemble state directory holding the task cache and the run
database.`,
		Example: `  # Initialize with a CUE build file
  assemble init

  # Initialize a Starlark build named "service"
  assemble init --format starlark --name service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log.Info().Str("dir", projectDir).Str("format", format).Msg("Initializing workspace")

			template, ok := buildTemplates[format]
			if !ok {
				return fmt.Errorf("unknown build file format %q (want cue, hcl or starlark)", format)
			}
			if err := identifier.ValidatePart(name); err != nil {
				return fmt.Errorf("invalid project name: %w", err)
			}

			ws, err := workspace.Open(projectDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initializing Assemble workspace in %s\n\n", ws.Root())

			if existing := config.FindBuildFile(ws.Root()); existing != "" && !force {
				return fmt.Errorf("build file %s already exists (use --force to overwrite)", existing)
			}
			buildPath := filepath.Join(ws.Root(), template.file)
			if err := workspace.AtomicWrite(buildPath, []byte(fmt.Sprintf(template.body, name))); err != nil {
				return fmt.Errorf("failed to write %s: %w", buildPath, err)
			}
			fmt.Fprintf(out, "✓ Created build file: %s\n", template.file)

			settingsPath := filepath.Join(ws.Root(), config.SettingsFileNames[0])
			if config.FindSettings(ws.Root()) == "" || force {
				data, err := yaml.Marshal(config.DefaultSettings())
				if err != nil {
					return fmt.Errorf("failed to encode settings: %w", err)
				}
				data = append([]byte("# Assemble settings. Command-line flags take precedence.\n"), data...)
				if err := workspace.AtomicWrite(settingsPath, data); err != nil {
					return fmt.Errorf("failed to write %s: %w", settingsPath, err)
				}
				fmt.Fprintf(out, "✓ Created settings: %s\n", filepath.Base(settingsPath))
			}

			if err := os.MkdirAll(ws.CachePath(), 0755); err != nil {
				return fmt.Errorf("failed to create task cache: %w", err)
			}
			fmt.Fprintf(out, "✓ Created task cache: %s\n", rel(ws.Root(), ws.CachePath()))

			store, err := stores.Open(ctx, ws.DatabasePath())
			if err != nil {
				return fmt.Errorf("failed to initialize run database: %w", err)
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized run database: %s\n", rel(ws.Root(), ws.DatabasePath()))

			fmt.Fprintf(out, "\nWorkspace initialized. Next steps:\n")
			fmt.Fprintf(out, "  assemble tasks\n")
			fmt.Fprintf(out, "  assemble run build\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "cue", "build file format (cue, hcl, starlark)")
	cmd.Flags().StringVar(&name, "name", "app", "root project name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}

type buildTemplate struct {
	file string
	// body takes the project name.
	body string
}

var buildTemplates = map[string]buildTemplate{
	"cue": {file: "assemble.cue", body: `project: {
	name: %q

	tasks: {
		stage: {
			type:        "copy"
			description: "Copies sources into the build directory"
			from: ["src"]
			into: "build/staging"
		}
		build: {
			description: "Assembles the project"
			group:       "build"
			depends_on: ["stage"]
		}
	}
}
`},
	"hcl": {file: "assemble.hcl", body: `project %q {
  task "stage" {
    type        = "copy"
    description = "Copies sources into the build directory"
    from        = ["src"]
    into        = "build/staging"
  }

  task "build" {
    description = "Assembles the project"
    group       = "build"
    depends_on  = ["stage"]
  }
}
`},
	"starlark": {file: "build.star", body: `stage = task(
    "stage",
    type = "copy",
    description = "Copies sources into the build directory",
    copy_from = ["src"],
    into = "build/staging",
)

project(
    name = %q,
    tasks = [
        stage,
        task("build", description = "Assembles the project", group = "build", depends_on = ["stage"]),
    ],
)
`},
}
