package project

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/task"
)

// Project is a directory with its own task container. Projects form a tree
// held by an Arena; parent and children are stored as ids.
type Project struct {
	arena    *Arena
	id       identifier.ProjectID
	dir      string
	buildDir *lazy.Prop[string]
	parent   *identifier.ProjectID
	children []identifier.ProjectID
	tasks    *Container
}

var _ task.Project = (*Project)(nil)

func newProject(arena *Arena, id identifier.ProjectID, dir string, parent *identifier.ProjectID) *Project {
	p := &Project{
		arena:    arena,
		id:       id,
		dir:      dir,
		buildDir: lazy.PropOf("buildDir", filepath.Join(dir, "build")),
		parent:   parent,
	}
	p.tasks = newContainer(p)
	return p
}

// ID implements task.Project.
func (p *Project) ID() identifier.ProjectID { return p.id }

// Dir implements task.Project.
func (p *Project) Dir() string { return p.dir }

// BuildDir implements task.Project.
func (p *Project) BuildDir() lazy.Provider[string] { return p.buildDir }

// BuildDirProp exposes the build directory for reconfiguration.
func (p *Project) BuildDirProp() *lazy.Prop[string] { return p.buildDir }

// Tasks returns the project's task container.
func (p *Project) Tasks() *Container { return p.tasks }

// Parent returns the enclosing project.
func (p *Project) Parent() (*Project, error) {
	if p.parent == nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeProjectNotFound,
			fmt.Sprintf("project %s has no parent", p.id), nil)
	}
	return p.arena.Project(*p.parent)
}

// Subprojects returns the child projects in creation order.
func (p *Project) Subprojects() []*Project {
	out := make([]*Project, 0, len(p.children))
	for _, id := range p.children {
		if child, err := p.arena.Project(id); err == nil {
			out = append(out, child)
		}
	}
	return out
}

// TaskIDs implements task.Project.
func (p *Project) TaskIDs() []identifier.TaskID {
	return p.tasks.TaskIDs()
}

// AllTaskIDs implements task.Project. The project's own tasks come first,
// followed by each subproject depth first.
func (p *Project) AllTaskIDs() []identifier.TaskID {
	ids := p.TaskIDs()
	for _, child := range p.Subprojects() {
		ids = append(ids, child.AllTaskIDs()...)
	}
	return ids
}

// HasTask implements task.Lookup across the whole arena.
func (p *Project) HasTask(id identifier.TaskID) bool {
	return p.arena.HasTask(id)
}

// Describe implements task.Project.
func (p *Project) Describe(id identifier.TaskID) (task.Info, error) {
	exec, err := p.arena.Resolve(id)
	if err != nil {
		return task.Info{}, err
	}
	return exec.Info(), nil
}

// FindTaskID implements task.Lookup.
//
// An absolute id (leading colon) must name an existing task. Otherwise repr
// is matched as a shorthand against this project and its subprojects; a
// match among the project's own tasks wins. When the subtree has no match
// the whole arena is searched, so sibling projects can refer to each other.
func (p *Project) FindTaskID(repr string) (identifier.TaskID, error) {
	if strings.HasPrefix(repr, identifier.Separator) {
		id, err := identifier.ParseTask(repr)
		if err != nil {
			return identifier.TaskID{}, engine.NewConfigurationError(engine.ErrCodeInvalidID,
				"invalid task reference", err)
		}
		if !p.HasTask(id) {
			return identifier.TaskID{}, notFound(repr)
		}
		return id, nil
	}

	if own := matchShorthand(p.TaskIDs(), repr); len(own) == 1 {
		return own[0], nil
	}

	candidates := matchShorthand(p.AllTaskIDs(), repr)
	if len(candidates) == 0 {
		candidates = matchShorthand(p.arena.AllTaskIDs(), repr)
	}
	switch len(candidates) {
	case 0:
		return identifier.TaskID{}, notFound(repr)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.String()
		}
		return identifier.TaskID{}, engine.NewConfigurationError(engine.ErrCodeAmbiguousTask,
			fmt.Sprintf("task reference %q is ambiguous: %s", repr, strings.Join(names, ", ")), nil).
			WithDetail("candidates", names)
	}
}

func matchShorthand(ids []identifier.TaskID, repr string) []identifier.TaskID {
	var out []identifier.TaskID
	for _, id := range ids {
		if id.IsShorthand(repr) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func notFound(repr string) error {
	return engine.NewConfigurationError(engine.ErrCodeTaskNotFound,
		fmt.Sprintf("task %q not found", repr), nil)
}
