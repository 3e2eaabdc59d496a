package config

import (
	"maps"
	"path/filepath"
	"slices"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/tasks"
)

// NewArena creates an arena for def rooted at dir and registers its projects
// and tasks. The root project takes def's name when it has one.
func NewArena(dir string, def *BuildDefinition, opts ...project.Option) (*project.Arena, error) {
	if def.Project.Name != "" {
		opts = append(opts, project.WithRootName(def.Project.Name))
	}
	if def.Project.Dir != "" {
		dir = resolve(dir, def.Project.Dir)
	}
	arena, err := project.NewArena(dir, opts...)
	if err != nil {
		return nil, err
	}
	if err := Apply(def, arena); err != nil {
		return nil, err
	}
	return arena, nil
}

// Apply registers def into an existing arena. Tasks are registered lazily;
// nothing is configured until the graph is built.
func Apply(def *BuildDefinition, arena *project.Arena) error {
	if err := ValidateDefinition(def); err != nil {
		return engine.NewConfigurationError(engine.ErrCodeConfigureFailed, "invalid build definition", err)
	}
	return applyProject(arena, arena.Root(), &def.Project)
}

func applyProject(arena *project.Arena, p *project.Project, def *ProjectDef) error {
	if def.BuildDir != "" {
		if err := p.BuildDirProp().Set(resolve(p.Dir(), def.BuildDir)); err != nil {
			return engine.NewConfigurationError(engine.ErrCodeConfigureFailed, "cannot set build directory", err).
				WithDetail("project", p.ID().String())
		}
	}

	for i := range def.Tasks {
		t := def.Tasks[i]
		if _, err := p.Tasks().RegisterWith(t.Name, factory(t), configure(t)); err != nil {
			return err
		}
	}

	for i := range def.Subprojects {
		sub := &def.Subprojects[i]
		child, err := arena.AddSubproject(p.ID(), sub.Name, sub.Dir)
		if err != nil {
			return err
		}
		if err := applyProject(arena, child, sub); err != nil {
			return err
		}
	}
	return nil
}

func factory(def TaskDef) task.Factory {
	return func(_ identifier.TaskID, proj task.Project) (task.Task, error) {
		switch def.EffectiveType() {
		case TaskTypeExec:
			t := tasks.NewExec()
			if err := t.Command.Set(def.Command); err != nil {
				return nil, err
			}
			if def.Args != nil {
				if err := t.Args.Set(slices.Clone(def.Args)); err != nil {
					return nil, err
				}
			}
			if def.WorkingDir != "" {
				if err := t.WorkingDir.Set(resolve(proj.Dir(), def.WorkingDir)); err != nil {
					return nil, err
				}
			}
			maps.Copy(t.Env, def.Env)
			t.IgnoreExitCode = def.IgnoreExitCode
			return t, nil
		case TaskTypeCopy:
			t := tasks.NewCopy()
			t.From.Add(def.From...)
			if err := t.Into.Set(def.Into); err != nil {
				return nil, err
			}
			return t, nil
		case TaskTypeDelete:
			return tasks.NewDelete(def.Paths...), nil
		default:
			return tasks.Empty{}, nil
		}
	}
}

func configure(def TaskDef) task.ConfigureFunc {
	return func(e *task.Executable, _ task.Project) error {
		if def.Description != "" {
			e.SetDescription(def.Description)
		}
		if def.Group != "" {
			e.SetGroup(def.Group)
		}

		e.DependsOn(byName(def.DependsOn)...)
		e.FinalizedBy(byName(def.FinalizedBy)...)
		e.RunsBefore(byName(def.RunsBefore)...)
		e.RunsAfter(byName(def.RunsAfter)...)

		for _, name := range slices.Sorted(maps.Keys(def.Inputs)) {
			task.Input[string](e, name, lazy.Just(def.Inputs[name]))
		}
		if len(def.InputFiles) > 0 {
			e.InputFiles(task.NewFileCollection(def.InputFiles...))
		}
		if len(def.SourceFiles) > 0 {
			e.SourceFiles(task.NewFileCollection(def.SourceFiles...))
		}
		if len(def.OutputFiles) > 0 {
			e.OutputFiles(task.NewFileCollection(def.OutputFiles...))
		}
		return nil
	}
}

func byName(names []string) []task.Buildable {
	out := make([]task.Buildable, len(names))
	for i, n := range names {
		out[i] = task.ByName(n)
	}
	return out
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
