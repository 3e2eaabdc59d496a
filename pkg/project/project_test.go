package project

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/tasks"
)

func newTestArena(t *testing.T, opts ...Option) *Arena {
	t.Helper()
	arena, err := NewArena(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("Failed to create arena: %v", err)
	}
	return arena
}

func empty() task.Factory { return task.FromTask(tasks.Empty{}) }

func TestContainer_RegisterDuplicate(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	c := arena.Root().Tasks()

	if _, err := c.Register("build", empty()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_, err := c.Register("build", empty())
	if !engine.HasCode(err, engine.ErrCodeDuplicateTask) {
		t.Fatalf("Expected DUPLICATE_TASK_ID, got %v", err)
	}
}

func TestContainer_RegisterInvalidName(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	_, err := arena.Root().Tasks().Register("1bad", empty())
	if !engine.HasCode(err, engine.ErrCodeInvalidID) {
		t.Fatalf("Expected INVALID_ID, got %v", err)
	}
}

type countingTask struct {
	tasks.Empty
	initialized int
	declared    int
	log         *[]string
}

func (c *countingTask) Initialize(*task.Executable, task.Project) error {
	c.initialized++
	*c.log = append(*c.log, "initialize")
	return nil
}

func (c *countingTask) DeclareIO(*task.Executable, task.Project) error {
	c.declared++
	*c.log = append(*c.log, "declare")
	return nil
}

func TestContainer_ResolveOnceInOrder(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	var log []string
	ct := &countingTask{log: &log}
	created := 0

	factory := func(identifier.TaskID, task.Project) (task.Task, error) {
		created++
		log = append(log, "create")
		return ct, nil
	}
	h, err := arena.Root().Tasks().RegisterWith("gen", factory, func(*task.Executable, task.Project) error {
		log = append(log, "configure1")
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_ = h.Configure(func(*task.Executable, task.Project) error {
		log = append(log, "configure2")
		return nil
	})

	if created != 0 {
		t.Fatal("Expected registration to be lazy")
	}

	first, err := arena.Resolve(h.ID())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, _ := arena.Resolve(h.ID())
	if first != second {
		t.Error("Expected the same executable on every resolution")
	}

	want := "create,configure1,configure2,initialize,declare"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if created != 1 || ct.initialized != 1 || ct.declared != 1 {
		t.Errorf("Expected hooks to run once, got create=%d init=%d declare=%d", created, ct.initialized, ct.declared)
	}

	// configuring a resolved task applies immediately
	applied := false
	_ = h.Configure(func(*task.Executable, task.Project) error {
		applied = true
		return nil
	})
	if !applied {
		t.Error("Expected configuration of a resolved task to apply immediately")
	}
}

func TestContainer_ConfigureError(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	boom := errors.New("boom")
	h, _ := arena.Root().Tasks().RegisterWith("gen", empty(), func(*task.Executable, task.Project) error { return nil })
	_ = h.Configure(func(*task.Executable, task.Project) error { return boom })

	_, err := arena.Resolve(h.ID())
	if !engine.HasCode(err, engine.ErrCodeConfigureFailed) {
		t.Fatalf("Expected CONFIGURE_FAILED, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("Expected the closure error to be wrapped")
	}
	for _, want := range []string{":root:gen", "#1"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %q", want, err.Error())
		}
	}
}

func TestContainer_Sealed(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	h, _ := arena.Root().Tasks().Register("a", empty())
	arena.Seal()

	if _, err := arena.Root().Tasks().Register("b", empty()); !engine.HasCode(err, engine.ErrCodeContainerSealed) {
		t.Errorf("Expected CONTAINER_SEALED, got %v", err)
	}
	if err := h.Configure(func(*task.Executable, task.Project) error { return nil }); !engine.HasCode(err, engine.ErrCodeContainerSealed) {
		t.Errorf("Expected CONTAINER_SEALED for queued configure, got %v", err)
	}
	if _, err := arena.Resolve(h.ID()); err != nil {
		t.Errorf("Expected resolution after sealing to succeed, got %v", err)
	}
}

func TestContainer_TaskIDsInRegistrationOrder(t *testing.T) {
	arena := newTestArena(t)
	root := arena.Root()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := root.Tasks().Register(name, empty()); err != nil {
			t.Fatal(err)
		}
	}

	var names []string
	for _, id := range root.TaskIDs() {
		names = append(names, id.Name())
	}
	want := "tasks,clean,zeta,alpha,mid"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestProject_FindTaskID(t *testing.T) {
	arena := newTestArena(t, WithPlugins())
	root := arena.Root()
	app, err := arena.AddSubproject(root.ID(), "app", "")
	if err != nil {
		t.Fatal(err)
	}
	lib, _ := arena.AddSubproject(root.ID(), "lib", "")

	_, _ = root.Tasks().Register("build", empty())
	_, _ = app.Tasks().Register("build", empty())
	_, _ = app.Tasks().Register("run", empty())
	_, _ = lib.Tasks().Register("compile", empty())
	_, _ = lib.Tasks().Register("run", empty())

	tests := []struct {
		name     string
		from     *Project
		repr     string
		want     string
		wantCode string
	}{
		{name: "absolute", from: root, repr: ":root:app:build", want: ":root:app:build"},
		{name: "current project wins", from: root, repr: "build", want: ":root:build"},
		{name: "qualified shorthand", from: root, repr: "app:build", want: ":root:app:build"},
		{name: "unique in subtree", from: root, repr: "compile", want: ":root:lib:compile"},
		{name: "ambiguous", from: root, repr: "run", wantCode: engine.ErrCodeAmbiguousTask},
		{name: "from subproject", from: app, repr: "run", want: ":root:app:run"},
		{name: "sibling fallback", from: app, repr: "compile", want: ":root:lib:compile"},
		{name: "not found", from: root, repr: "deploy", wantCode: engine.ErrCodeTaskNotFound},
		{name: "absolute not found", from: root, repr: ":root:deploy", wantCode: engine.ErrCodeTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.from.FindTaskID(tt.repr)
			if tt.wantCode != "" {
				if !engine.HasCode(err, tt.wantCode) {
					t.Fatalf("Expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if id.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, id)
			}
		})
	}
}

func TestProject_Hierarchy(t *testing.T) {
	arena := newTestArena(t)
	root := arena.Root()
	app, _ := arena.AddSubproject(root.ID(), "app", "")

	parent, err := app.Parent()
	if err != nil || parent != root {
		t.Fatalf("Expected parent root, got %v (%v)", parent, err)
	}
	if _, err := root.Parent(); !engine.HasCode(err, engine.ErrCodeProjectNotFound) {
		t.Errorf("Expected PROJECT_NOT_FOUND for root parent, got %v", err)
	}
	if subs := root.Subprojects(); len(subs) != 1 || subs[0] != app {
		t.Errorf("Expected one subproject, got %v", subs)
	}
	if _, err := arena.AddSubproject(root.ID(), "app", ""); !engine.HasCode(err, engine.ErrCodeDuplicateProject) {
		t.Errorf("Expected DUPLICATE_PROJECT_ID, got %v", err)
	}
	if app.BuildDir().Get() != app.Dir()+"/build" {
		t.Errorf("Unexpected build dir %s", app.BuildDir().Get())
	}
}

func TestBasePlugin_Report(t *testing.T) {
	arena := newTestArena(t)
	root := arena.Root()
	h, _ := root.Tasks().RegisterWith("compile", empty(), func(e *task.Executable, _ task.Project) error {
		e.SetGroup(GroupBuild)
		e.SetDescription("Compiles sources")
		return nil
	})
	_ = h

	reportID, err := root.FindTaskID("tasks")
	if err != nil {
		t.Fatal(err)
	}
	report, err := arena.Resolve(reportID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := report.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := report.Stdout().String()
	for _, want := range []string{"Build tasks", ":root:compile - Compiles sources", ":root:clean - Deletes the build directory", "Help tasks"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, out)
		}
	}
}
