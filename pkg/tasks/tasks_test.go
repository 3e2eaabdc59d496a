package tasks_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/tasks"
)

func resolve(t *testing.T, p *project.Project, name string, tk task.Task, configure task.ConfigureFunc) *task.Executable {
	t.Helper()
	h, err := p.Tasks().RegisterWith(name, task.FromTask(tk), configure)
	if err != nil {
		t.Fatalf("Failed to register %s: %v", name, err)
	}
	exec, err := h.FallibleGet()
	if err != nil {
		t.Fatalf("Failed to resolve %s: %v", name, err)
	}
	return exec
}

func newRoot(t *testing.T) *project.Project {
	t.Helper()
	arena, err := project.NewArena(t.TempDir(), project.WithPlugins())
	if err != nil {
		t.Fatal(err)
	}
	return arena.Root()
}

func TestExec_CapturesOutput(t *testing.T) {
	root := newRoot(t)
	ex := tasks.NewExec()
	_ = ex.Command.Set("sh")
	_ = ex.Args.Set([]string{"-c", "echo hello; echo oops >&2"})

	exec := resolve(t, root, "hello", ex, nil)
	if _, err := exec.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := strings.TrimSpace(exec.Stdout().String()); got != "hello" {
		t.Errorf("Expected stdout hello, got %q", got)
	}
	if got := strings.TrimSpace(exec.Stderr().String()); got != "oops" {
		t.Errorf("Expected stderr oops, got %q", got)
	}
}

func TestExec_NonZeroExit(t *testing.T) {
	root := newRoot(t)
	ex := tasks.NewExec()
	_ = ex.Command.Set("sh")
	_ = ex.Args.Set([]string{"-c", "exit 3"})

	exec := resolve(t, root, "fail", ex, nil)
	_, err := exec.Execute(context.Background())
	var exitErr *tasks.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != 3 {
		t.Fatalf("Expected exit code 3, got %v", err)
	}

	ex.IgnoreExitCode = true
	if _, err := exec.Execute(context.Background()); err != nil {
		t.Errorf("Expected ignored exit code, got %v", err)
	}
}

func TestExec_InputsIncludeCommandLine(t *testing.T) {
	root := newRoot(t)
	ex := tasks.NewExec()
	_ = ex.Command.Set("echo")

	exec := resolve(t, root, "echo", ex, nil)
	first, err := exec.SnapshotInputs()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_ = ex.Args.Set([]string{"changed"})
	second, _ := exec.SnapshotInputs()
	if !second.Changed(&first) {
		t.Error("Expected argument change to change the inputs")
	}
}

func TestExec_WorkingDirIsInput(t *testing.T) {
	root := newRoot(t)
	ex := tasks.NewExec()
	_ = ex.Command.Set("pwd")

	exec := resolve(t, root, "pwd", ex, nil)
	first, err := exec.SnapshotInputs()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_ = ex.WorkingDir.Set(root.Dir())
	same, _ := exec.SnapshotInputs()
	if same.Changed(&first) {
		t.Error("Expected the project directory to be the default working directory")
	}

	_ = ex.WorkingDir.Set(t.TempDir())
	second, _ := exec.SnapshotInputs()
	if !second.Changed(&first) {
		t.Error("Expected working directory change to change the inputs")
	}
}

func TestExec_MissingCommand(t *testing.T) {
	root := newRoot(t)
	exec := resolve(t, root, "nothing", tasks.NewExec(), nil)
	if _, err := exec.SnapshotInputs(); err == nil {
		t.Error("Expected snapshot to fail without a command")
	}
}

func TestCopy(t *testing.T) {
	root := newRoot(t)
	src := filepath.Join(root.Dir(), "src")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	cp := tasks.NewCopy()
	cp.From.Add("src")
	_ = cp.Into.Set("build/out")

	exec := resolve(t, root, "copy", cp, nil)
	if _, err := exec.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root.Dir(), "build", "out", "nested", "b.txt"))
	if err != nil || string(data) != "b" {
		t.Fatalf("Expected copied nested file, got %q (%v)", data, err)
	}
	if n, _ := exec.Property("copied"); n != 2 {
		t.Errorf("Expected 2 copied files, got %v", n)
	}

	roots, err := exec.OutputRoots()
	if err != nil || len(roots) != 1 || roots[0] != filepath.Join(root.Dir(), "build", "out") {
		t.Errorf("Unexpected output roots %v (%v)", roots, err)
	}
}

func TestCopy_NoSource(t *testing.T) {
	root := newRoot(t)
	cp := tasks.NewCopy()
	cp.From.Add("missing")
	_ = cp.Into.Set("out")

	exec := resolve(t, root, "copy", cp, nil)
	empty, err := exec.SourceEmpty()
	if err != nil || !empty {
		t.Errorf("Expected empty source, got empty=%v err=%v", empty, err)
	}
}

func TestDelete(t *testing.T) {
	root := newRoot(t)
	target := filepath.Join(root.Dir(), "build")
	if err := os.MkdirAll(filepath.Join(target, "x"), 0755); err != nil {
		t.Fatal(err)
	}

	exec := resolve(t, root, "clean", tasks.NewClean(root.BuildDir()), nil)
	if _, err := exec.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("Expected build dir to be removed, stat err=%v", err)
	}

	if _, err := exec.Execute(context.Background()); err != nil {
		t.Errorf("Expected deleting a missing path to succeed, got %v", err)
	}
}

func TestWriteReport_All(t *testing.T) {
	var b strings.Builder
	root := newRoot(t)
	grouped := resolve(t, root, "compile", tasks.Empty{}, func(e *task.Executable, _ task.Project) error {
		e.SetGroup("build")
		return nil
	})
	ungrouped := resolve(t, root, "scratch", tasks.Empty{}, nil)

	infos := []task.Info{grouped.Info(), ungrouped.Info()}
	tasks.WriteReport(&b, ":root", infos, false)
	if strings.Contains(b.String(), "scratch") {
		t.Errorf("Expected ungrouped task to be hidden, got:\n%s", b.String())
	}

	b.Reset()
	tasks.WriteReport(&b, ":root", infos, true)
	out := b.String()
	if !strings.Contains(out, "Other tasks") || !strings.Contains(out, ":root:scratch") {
		t.Errorf("Expected ungrouped task under Other tasks, got:\n%s", out)
	}
	if strings.Index(out, "Build tasks") > strings.Index(out, "Other tasks") {
		t.Error("Expected ungrouped tasks to be listed last")
	}
}
