package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// HCLParser reads assemble.hcl build definitions:
//
//	project "app" {
//	  task "compile" {
//	    type    = "exec"
//	    command = "go"
//	    args    = ["build", "./..."]
//	    inputs  = { version = env.VERSION }
//	  }
//	  subproject "lib" {
//	    task "test" {
//	      type    = "exec"
//	      command = "go"
//	      args    = ["test"]
//	    }
//	  }
//	}
//
// Expressions may reference env.NAME for environment variables.
type HCLParser struct {
	parser  *hclparse.Parser
	environ func() []string
}

// NewHCLParser creates a parser that exposes the process environment.
func NewHCLParser() *HCLParser {
	return &HCLParser{parser: hclparse.NewParser(), environ: os.Environ}
}

type hclFile struct {
	Project *hclProject `hcl:"project,block"`
}

type hclProject struct {
	Name        string        `hcl:"name,label"`
	Dir         string        `hcl:"dir,optional"`
	BuildDir    string        `hcl:"build_dir,optional"`
	Tasks       []*hclTask    `hcl:"task,block"`
	Subprojects []*hclProject `hcl:"subproject,block"`
}

type hclTask struct {
	Name        string `hcl:"name,label"`
	Type        string `hcl:"type,optional"`
	Description string `hcl:"description,optional"`
	Group       string `hcl:"group,optional"`

	DependsOn   []string `hcl:"depends_on,optional"`
	FinalizedBy []string `hcl:"finalized_by,optional"`
	RunsBefore  []string `hcl:"runs_before,optional"`
	RunsAfter   []string `hcl:"runs_after,optional"`

	Inputs      map[string]string `hcl:"inputs,optional"`
	InputFiles  []string          `hcl:"input_files,optional"`
	SourceFiles []string          `hcl:"source_files,optional"`
	OutputFiles []string          `hcl:"output_files,optional"`

	Command        string            `hcl:"command,optional"`
	Args           []string          `hcl:"args,optional"`
	WorkingDir     string            `hcl:"working_dir,optional"`
	Env            map[string]string `hcl:"env,optional"`
	IgnoreExitCode bool              `hcl:"ignore_exit_code,optional"`

	From  []string `hcl:"from,optional"`
	Into  string   `hcl:"into,optional"`
	Paths []string `hcl:"paths,optional"`
}

// Parse reads one HCL file.
func (hp *HCLParser) Parse(_ context.Context, path string) (*BuildDefinition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	def, err := hp.ParseBytes(src, path)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// ParseBytes parses HCL source. filename is used in diagnostics.
func (hp *HCLParser) ParseBytes(src []byte, filename string) (*BuildDefinition, error) {
	file, diags := hp.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, &DefinitionError{Errors: convertDiagnostics(diags)}
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, hp.evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, &DefinitionError{Errors: convertDiagnostics(diags)}
	}
	if parsed.Project == nil {
		return nil, &DefinitionError{Errors: []ValidationError{{
			File: filename, Message: "no project block declared", Severity: "error",
		}}}
	}

	return &BuildDefinition{
		Project:     parsed.Project.toDef(),
		SourceFiles: []string{filename},
		Format:      "hcl",
		ParsedAt:    time.Now(),
	}, nil
}

func (hp *HCLParser) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range hp.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = cty.StringVal(value)
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

func (p *hclProject) toDef() ProjectDef {
	def := ProjectDef{Name: p.Name, Dir: p.Dir, BuildDir: p.BuildDir}
	for _, t := range p.Tasks {
		def.Tasks = append(def.Tasks, TaskDef{
			Name:           t.Name,
			Type:           t.Type,
			Description:    t.Description,
			Group:          t.Group,
			DependsOn:      t.DependsOn,
			FinalizedBy:    t.FinalizedBy,
			RunsBefore:     t.RunsBefore,
			RunsAfter:      t.RunsAfter,
			Inputs:         t.Inputs,
			InputFiles:     t.InputFiles,
			SourceFiles:    t.SourceFiles,
			OutputFiles:    t.OutputFiles,
			Command:        t.Command,
			Args:           t.Args,
			WorkingDir:     t.WorkingDir,
			Env:            t.Env,
			IgnoreExitCode: t.IgnoreExitCode,
			From:           t.From,
			Into:           t.Into,
			Paths:          t.Paths,
		})
	}
	for _, sub := range p.Subprojects {
		def.Subprojects = append(def.Subprojects, sub.toDef())
	}
	return def
}

func convertDiagnostics(diags hcl.Diagnostics) []ValidationError {
	var out []ValidationError
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		v := ValidationError{Message: d.Summary, Severity: "error"}
		if d.Detail != "" {
			v.Message += ": " + d.Detail
		}
		if d.Subject != nil {
			v.File = d.Subject.Filename
			v.Line = d.Subject.Start.Line
			v.Column = d.Subject.Start.Column
		}
		out = append(out, v)
	}
	return out
}
