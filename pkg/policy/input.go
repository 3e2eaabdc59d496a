package policy

import (
	"github.com/assemble/assemble/pkg/config"
	"github.com/assemble/assemble/pkg/identifier"
)

// Input is the document policies see as input.
type Input struct {
	Projects []ProjectInput `json:"projects"`
	Tasks    []TaskInput    `json:"tasks"`

	// Known lists every task id that references may resolve to, including
	// tasks added by plugins.
	Known []string `json:"known"`
}

// ProjectInput describes one project of the definition.
type ProjectInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Dir      string `json:"dir,omitempty"`
	BuildDir string `json:"build_dir,omitempty"`
}

// TaskInput is a task definition with its full id. Type is always set.
type TaskInput struct {
	ID      string `json:"id"`
	Project string `json:"project"`
	config.TaskDef
}

// NewInput flattens def. known adds ids registered outside the definition,
// typically arena.AllTaskIDs().
func NewInput(def *config.BuildDefinition, known []identifier.TaskID) *Input {
	in := &Input{}
	seen := make(map[string]bool)
	addKnown := func(id string) {
		if !seen[id] {
			seen[id] = true
			in.Known = append(in.Known, id)
		}
	}

	var walk func(parent string, p *config.ProjectDef)
	walk = func(parent string, p *config.ProjectDef) {
		name := p.Name
		if parent == "" && name == "" {
			name = identifier.RootName
		}
		id := parent + ":" + name
		in.Projects = append(in.Projects, ProjectInput{ID: id, Name: name, Dir: p.Dir, BuildDir: p.BuildDir})
		for _, t := range p.Tasks {
			t.Type = t.EffectiveType()
			ti := TaskInput{ID: id + ":" + t.Name, Project: id, TaskDef: t}
			in.Tasks = append(in.Tasks, ti)
			addKnown(ti.ID)
		}
		for i := range p.Subprojects {
			walk(id, &p.Subprojects[i])
		}
	}
	walk("", &def.Project)

	for _, id := range known {
		addKnown(id.String())
	}
	return in
}
