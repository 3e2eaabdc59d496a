// Package project holds the project tree of a build and the per-project task
// containers.
//
// An Arena owns every project, keyed by ProjectID. Each Project has a
// Container where tasks are registered by name together with a factory and
// optional configuration closures:
//
//	arena, _ := project.NewArena(".")
//	root := arena.Root()
//	compile, _ := root.Tasks().Register("compile", task.FromTask(tasks.NewExec()))
//	_ = compile.Configure(func(e *task.Executable, p task.Project) error {
//	    e.SetDescription("Compiles the sources")
//	    return nil
//	})
//
// Nothing is created until a task is resolved. Resolution runs the factory,
// the configuration closures in registration order and the task's own
// Initialize and DeclareIO hooks, exactly once.
//
// Every project receives the BasePlugin tasks "tasks" and "clean" unless the
// arena is created WithPlugins.
package project
