package project

import (
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/tasks"
)

// Task groups used by the base plugin.
const (
	GroupBuild = "build"
	GroupHelp  = "help"
)

// BasePlugin registers the "tasks" report and the "clean" task.
func BasePlugin(p *Project) error {
	_, err := p.Tasks().RegisterWith("tasks",
		func(identifier.TaskID, task.Project) (task.Task, error) { return &tasks.Report{}, nil },
		func(e *task.Executable, _ task.Project) error {
			e.SetGroup(GroupHelp)
			return nil
		})
	if err != nil {
		return err
	}

	_, err = p.Tasks().RegisterWith("clean",
		func(_ identifier.TaskID, proj task.Project) (task.Task, error) {
			return tasks.NewClean(proj.BuildDir()), nil
		},
		func(e *task.Executable, _ task.Project) error {
			e.SetGroup(GroupBuild)
			e.SetDescription("Deletes the build directory")
			return nil
		})
	return err
}
