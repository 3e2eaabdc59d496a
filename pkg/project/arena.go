package project

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
)

// Plugin configures a newly created project.
type Plugin func(p *Project) error

// Option configures an Arena.
type Option func(*Arena)

// WithPlugins replaces the plugins applied to every project. Without this
// option every project gets BasePlugin.
func WithPlugins(plugins ...Plugin) Option {
	return func(a *Arena) { a.plugins = plugins }
}

// WithRootName names the root project.
func WithRootName(name string) Option {
	return func(a *Arena) { a.rootName = name }
}

// Arena owns every project of a build, indexed by id.
type Arena struct {
	mu       sync.RWMutex
	projects map[identifier.ProjectID]*Project
	order    []identifier.ProjectID
	root     identifier.ProjectID
	rootName string
	plugins  []Plugin
}

// NewArena creates an arena whose root project lives in dir.
func NewArena(dir string, opts ...Option) (*Arena, error) {
	a := &Arena{
		projects: make(map[identifier.ProjectID]*Project),
		rootName: identifier.RootName,
		plugins:  []Plugin{BasePlugin},
	}
	for _, opt := range opts {
		opt(a)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory %s: %w", dir, err)
	}
	rootID, err := identifier.FromParts(a.rootName)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidID, "invalid root project name", err)
	}
	a.root = identifier.ProjectID{ID: rootID}
	if _, err := a.add(newProject(a, a.root, abs, nil)); err != nil {
		return nil, err
	}
	return a, nil
}

// Root returns the root project.
func (a *Arena) Root() *Project {
	p, _ := a.Project(a.root)
	return p
}

// Project looks up a project by id.
func (a *Arena) Project(id identifier.ProjectID) (*Project, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.projects[id]
	if !ok {
		return nil, engine.NewConfigurationError(engine.ErrCodeProjectNotFound,
			fmt.Sprintf("project %s not found", id), nil)
	}
	return p, nil
}

// Projects returns every project in creation order.
func (a *Arena) Projects() []*Project {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Project, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.projects[id])
	}
	return out
}

// AddSubproject creates a child of parent. An empty dir defaults to a
// directory named after the project inside the parent's directory.
func (a *Arena) AddSubproject(parent identifier.ProjectID, name, dir string) (*Project, error) {
	parentProject, err := a.Project(parent)
	if err != nil {
		return nil, err
	}
	id, err := parent.Subproject(name)
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInvalidID, "invalid project name", err)
	}
	switch {
	case dir == "":
		dir = filepath.Join(parentProject.dir, name)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(parentProject.dir, dir)
	}

	child, err := a.add(newProject(a, id, dir, &parent))
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	parentProject.children = append(parentProject.children, id)
	a.mu.Unlock()
	return child, nil
}

func (a *Arena) add(p *Project) (*Project, error) {
	a.mu.Lock()
	if _, exists := a.projects[p.id]; exists {
		a.mu.Unlock()
		return nil, engine.NewConfigurationError(engine.ErrCodeDuplicateProject,
			fmt.Sprintf("project %s already exists", p.id), nil)
	}
	a.projects[p.id] = p
	a.order = append(a.order, p.id)
	a.mu.Unlock()

	for _, plugin := range a.plugins {
		if err := plugin(p); err != nil {
			return nil, fmt.Errorf("applying plugin to %s: %w", p.id, err)
		}
	}
	return p, nil
}

// HasTask reports whether any project registered id.
func (a *Arena) HasTask(id identifier.TaskID) bool {
	p, err := a.Project(id.Project())
	if err != nil {
		return false
	}
	return p.tasks.Has(id)
}

// Resolve resolves a task in its owning project.
func (a *Arena) Resolve(id identifier.TaskID) (*task.Executable, error) {
	p, err := a.Project(id.Project())
	if err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeTaskNotFound, "task not found", err).WithTask(id)
	}
	return p.tasks.Resolve(id)
}

// AllTaskIDs lists every task of every project.
func (a *Arena) AllTaskIDs() []identifier.TaskID {
	var ids []identifier.TaskID
	for _, p := range a.Projects() {
		ids = append(ids, p.TaskIDs()...)
	}
	return ids
}

// FindTaskID resolves a reference relative to the root project.
func (a *Arena) FindTaskID(repr string) (identifier.TaskID, error) {
	return a.Root().FindTaskID(repr)
}

// Seal rejects further registration in every project.
func (a *Arena) Seal() {
	for _, p := range a.Projects() {
		p.tasks.Seal()
	}
}
