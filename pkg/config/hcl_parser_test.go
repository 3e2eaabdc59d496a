package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestHCLParser_ParseBytes(t *testing.T) {
	hp := NewHCLParser()
	hp.environ = func() []string { return []string{"VERSION=1.2.3", "EMPTY="} }

	src := `
project "app" {
  build_dir = "out"

  task "compile" {
    type    = "exec"
    command = "go"
    args    = ["build", "./..."]
    inputs  = { version = env.VERSION }
  }

  task "build" {
    depends_on   = ["compile"]
    finalized_by = ["report"]
  }

  task "report" {}

  subproject "lib" {
    dir = "libs/lib"
    task "test" {
      type    = "exec"
      command = "go"
      args    = ["test"]
    }
  }
}
`
	def, err := hp.ParseBytes([]byte(src), "assemble.hcl")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if def.Format != "hcl" {
		t.Errorf("Expected format hcl, got %s", def.Format)
	}
	p := def.Project
	if p.Name != "app" || p.BuildDir != "out" {
		t.Errorf("Expected project app with build dir out, got %+v", p)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(p.Tasks))
	}
	if got := p.Tasks[0].Inputs["version"]; got != "1.2.3" {
		t.Errorf("Expected version input 1.2.3, got %q", got)
	}
	if got := p.Tasks[1].FinalizedBy; len(got) != 1 || got[0] != "report" {
		t.Errorf("Expected build finalized by report, got %v", got)
	}
	if len(p.Subprojects) != 1 || p.Subprojects[0].Name != "lib" || p.Subprojects[0].Dir != "libs/lib" {
		t.Fatalf("Unexpected subprojects: %+v", p.Subprojects)
	}
	if err := ValidateDefinition(def); err != nil {
		t.Errorf("Expected parsed definition to validate, got: %v", err)
	}
}

func TestHCLParser_Errors(t *testing.T) {
	hp := NewHCLParser()
	hp.environ = func() []string { return nil }

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"no project", `# nothing`, "no project block"},
		{"syntax", `project "app" {`, "validation failed"},
		{"unknown attribute", "project \"app\" {\n  task \"x\" {\n    comand = \"go\"\n  }\n}\n", "comand"},
		{"missing env", "project \"app\" {\n  task \"x\" {\n    command = env.GOPATH\n  }\n}\n", "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hp.ParseBytes([]byte(tt.src), "assemble.hcl")
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			var defErr *DefinitionError
			if !errors.As(err, &defErr) {
				t.Errorf("Expected *DefinitionError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHCLParser_DiagnosticPosition(t *testing.T) {
	hp := NewHCLParser()
	_, err := hp.ParseBytes([]byte("project \"app\" {\n  task \"x\" {\n    bogus = 1\n  }\n}\n"), "build.hcl")
	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("Expected *DefinitionError, got %v", err)
	}
	if defErr.Errors[0].File != "build.hcl" || defErr.Errors[0].Line != 3 {
		t.Errorf("Expected build.hcl line 3, got %+v", defErr.Errors[0])
	}
}

func TestHCLParser_ParseFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "assemble.hcl", "project \"app\" {\n  task \"build\" {}\n}\n")
	def, err := NewHCLParser().Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if def.SourceFiles[0] != path {
		t.Errorf("Expected source %s, got %v", path, def.SourceFiles)
	}

	if _, err := NewHCLParser().Parse(context.Background(), filepath.Join(t.TempDir(), "missing.hcl")); err == nil {
		t.Error("Expected error for missing file")
	}
}
