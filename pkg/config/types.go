package config

import (
	"fmt"
	"strings"
	"time"
)

// Task types understood by Apply.
const (
	TaskTypeEmpty  = "empty"
	TaskTypeExec   = "exec"
	TaskTypeCopy   = "copy"
	TaskTypeDelete = "delete"
)

// BuildDefinition is a parsed build file, independent of its source format.
type BuildDefinition struct {
	// Project is the root project.
	Project ProjectDef `json:"project" validate:"required"`

	// SourceFiles lists the files the definition was read from.
	SourceFiles []string `json:"source_files,omitempty"`

	// Format is "cue", "hcl" or "starlark".
	Format string `json:"format"`

	ParsedAt time.Time `json:"parsed_at"`
}

// ProjectDef declares a project, its tasks and its subprojects.
type ProjectDef struct {
	// Name overrides the root project name. For subprojects it is required.
	Name string `json:"name,omitempty" validate:"omitempty,identpart"`

	// Dir is relative to the parent project directory.
	Dir string `json:"dir,omitempty"`

	// BuildDir is relative to the project directory.
	BuildDir string `json:"build_dir,omitempty"`

	Tasks       []TaskDef    `json:"tasks,omitempty" validate:"dive"`
	Subprojects []ProjectDef `json:"subprojects,omitempty" validate:"dive"`
}

// TaskDef declares one task. Which fields apply depends on Type.
type TaskDef struct {
	Name        string `json:"name" validate:"required,identpart"`
	Type        string `json:"type,omitempty" validate:"omitempty,oneof=empty exec copy delete"`
	Description string `json:"description,omitempty"`
	Group       string `json:"group,omitempty"`

	DependsOn   []string `json:"depends_on,omitempty" validate:"dive,required"`
	FinalizedBy []string `json:"finalized_by,omitempty" validate:"dive,required"`
	RunsBefore  []string `json:"runs_before,omitempty" validate:"dive,required"`
	RunsAfter   []string `json:"runs_after,omitempty" validate:"dive,required"`

	// Inputs are named string properties that take part in up-to-date checks.
	Inputs      map[string]string `json:"inputs,omitempty"`
	InputFiles  []string          `json:"input_files,omitempty"`
	SourceFiles []string          `json:"source_files,omitempty"`
	OutputFiles []string          `json:"output_files,omitempty"`

	// exec
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	IgnoreExitCode bool              `json:"ignore_exit_code,omitempty"`

	// copy
	From []string `json:"from,omitempty"`
	Into string   `json:"into,omitempty"`

	// delete
	Paths []string `json:"paths,omitempty"`
}

// EffectiveType returns Type, defaulting to empty.
func (t *TaskDef) EffectiveType() string {
	if t.Type == "" {
		return TaskTypeEmpty
	}
	return t.Type
}

// ValidationError is a problem found in a build definition.
type ValidationError struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (v ValidationError) String() string {
	var b strings.Builder
	if v.File != "" {
		b.WriteString(v.File)
		if v.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", v.Line, v.Column)
		}
		b.WriteString(": ")
	}
	if v.Path != "" {
		b.WriteString(v.Path)
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	return b.String()
}

// DefinitionError collects every validation error of a build definition.
type DefinitionError struct {
	Errors []ValidationError
}

func (e *DefinitionError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0].String()
	}
	lines := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		lines[i] = "  " + v.String()
	}
	return fmt.Sprintf("validation failed (%d errors):\n%s", len(e.Errors), strings.Join(lines, "\n"))
}

func errorf(path, format string, args ...any) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf(format, args...), Severity: "error"}
}
