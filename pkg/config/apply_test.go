package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/executor"
	"github.com/assemble/assemble/pkg/graph"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/task"
)

func TestNewArena_FromDefinition(t *testing.T) {
	dir := t.TempDir()
	def := &BuildDefinition{Project: ProjectDef{
		Name: "app",
		Tasks: []TaskDef{
			{Name: "compile", Description: "Compiles", Group: "build"},
			{Name: "build", DependsOn: []string{"compile"}, FinalizedBy: []string{"report"}},
			{Name: "report"},
		},
		Subprojects: []ProjectDef{{
			Name:  "lib",
			Tasks: []TaskDef{{Name: "test", RunsAfter: []string{":app:compile"}}},
		}},
	}}

	arena, err := NewArena(dir, def, project.WithPlugins())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := arena.Root().ID().String(); got != ":app" {
		t.Errorf("Expected root :app, got %s", got)
	}

	build := identifier.MustTask(":app:build")
	g, err := graph.Build(context.Background(), arena, []identifier.TaskID{build})
	if err != nil {
		t.Fatalf("Failed to build graph: %v", err)
	}
	compile := identifier.MustTask(":app:compile")
	report := identifier.MustTask(":app:report")
	for _, id := range []identifier.TaskID{build, compile, report} {
		if !g.Contains(id) {
			t.Errorf("Expected graph to contain %s", id)
		}
	}
	if g.Len() != 3 {
		t.Errorf("Expected 3 nodes, got %d", g.Len())
	}

	kinds := map[task.OrderingKind]bool{}
	for _, e := range g.Edges {
		kinds[e.Kind] = true
	}
	if !kinds[task.DependsOn] || !kinds[task.FinalizedBy] {
		t.Errorf("Expected depends_on and finalized_by edges, got %+v", g.Edges)
	}

	exec, err := arena.Resolve(compile)
	if err != nil {
		t.Fatalf("Failed to resolve compile: %v", err)
	}
	if exec.Description() != "Compiles" || exec.Group() != "build" {
		t.Errorf("Expected description and group, got %q %q", exec.Description(), exec.Group())
	}

	if !arena.HasTask(identifier.MustTask(":app:lib:test")) {
		t.Error("Expected subproject task :app:lib:test")
	}
}

func TestNewArena_InvalidDefinition(t *testing.T) {
	def := &BuildDefinition{Project: ProjectDef{
		Tasks: []TaskDef{{Name: "run", Type: TaskTypeExec}},
	}}
	_, err := NewArena(t.TempDir(), def, project.WithPlugins())
	if err == nil {
		t.Fatal("Expected error for exec task without command")
	}
	if !engine.HasCode(err, engine.ErrCodeConfigureFailed) {
		t.Errorf("Expected CONFIGURE_FAILED, got %v", err)
	}
}

func TestApply_CopyTaskRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.txt", "alpha")

	def := &BuildDefinition{Project: ProjectDef{
		BuildDir: "out",
		Tasks: []TaskDef{
			{Name: "stage", Type: TaskTypeCopy, From: []string{"src"}, Into: "out/staged"},
			{Name: "assemble", DependsOn: []string{"stage"}},
		},
	}}
	arena, err := NewArena(dir, def, project.WithPlugins())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := arena.Root().BuildDir().Get(); got != filepath.Join(dir, "out") {
		t.Errorf("Expected build dir %s, got %s", filepath.Join(dir, "out"), got)
	}

	root := arena.Root().ID().String()
	g, err := graph.Build(context.Background(), arena, []identifier.TaskID{identifier.MustTask(root + ":assemble")})
	if err != nil {
		t.Fatalf("Failed to build graph: %v", err)
	}
	report, err := executor.New(executor.Options{Workers: 2}).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("Expected build to succeed, got %v", report.Err())
	}
	data, err := os.ReadFile(filepath.Join(dir, "out", "staged", "a.txt"))
	if err != nil {
		t.Fatalf("Expected copied file, got: %v", err)
	}
	if string(data) != "alpha" {
		t.Errorf("Expected alpha, got %q", data)
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		def     ProjectDef
		wantErr bool
	}{
		{"valid", ProjectDef{Tasks: []TaskDef{{Name: "a"}, {Name: "b", DependsOn: []string{"a"}}}}, false},
		{"duplicate task", ProjectDef{Tasks: []TaskDef{{Name: "a"}, {Name: "a"}}}, true},
		{"bad name", ProjectDef{Tasks: []TaskDef{{Name: "a:b"}}}, true},
		{"copy without into", ProjectDef{Tasks: []TaskDef{{Name: "c", Type: TaskTypeCopy, From: []string{"x"}}}}, true},
		{"delete without paths", ProjectDef{Tasks: []TaskDef{{Name: "d", Type: TaskTypeDelete}}}, true},
		{"unnamed subproject", ProjectDef{Subprojects: []ProjectDef{{}}}, true},
		{"duplicate subproject", ProjectDef{Subprojects: []ProjectDef{{Name: "x"}, {Name: "x"}}}, true},
		{"empty ordering", ProjectDef{Tasks: []TaskDef{{Name: "a", DependsOn: []string{""}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(&BuildDefinition{Project: tt.def})
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoader_LoadDir(t *testing.T) {
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	ctx := context.Background()

	dir := t.TempDir()
	if _, err := l.LoadDir(ctx, dir); err == nil {
		t.Error("Expected error for directory without build file")
	}

	writeFile(t, dir, "build.star", `project(tasks = [task("b")])`)
	writeFile(t, dir, "assemble.hcl", "project \"app\" {\n  task \"a\" {}\n}\n")
	def, err := l.LoadDir(ctx, dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if def.Format != "hcl" {
		t.Errorf("Expected assemble.hcl to take precedence, got %s", def.Format)
	}

	writeFile(t, dir, "assemble.cue", `project: tasks: a: {}, project: tasks: a: {}`)
	def, err = l.LoadDir(ctx, dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if def.Format != "cue" {
		t.Errorf("Expected assemble.cue to take precedence, got %s", def.Format)
	}

	bad := writeFile(t, dir, "dup.star", `project(tasks = [task("a"), task("a")])`)
	if _, err := l.Load(ctx, bad); err == nil {
		t.Error("Expected duplicate task names to fail validation")
	}
	if _, err := l.Load(ctx, filepath.Join(dir, "build.json")); err == nil {
		t.Error("Expected unsupported extension to fail")
	}
}
