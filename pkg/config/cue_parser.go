package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser reads assemble.cue build definitions. Files and package
// directories given together are unified into one value before extraction.
//
//	project: {
//		name: "app"
//		tasks: compile: {type: "exec", command: "go", args: ["build", "./..."]}
//		subprojects: lib: tasks: test: {type: "exec", command: "go", args: ["test"]}
//	}
type CUEParser struct {
	ctx     *cue.Context
	schemas *SchemaRegistry
}

// NewCUEParser creates a parser with the built-in schemas.
func NewCUEParser() (*CUEParser, error) {
	ctx := cuecontext.New()
	schemas, err := NewSchemaRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return &CUEParser{ctx: ctx, schemas: schemas}, nil
}

// Schemas returns the registry used for unification.
func (cp *CUEParser) Schemas() *SchemaRegistry { return cp.schemas }

// Parse loads the sources and extracts the build definition. Problems in the
// sources are returned together as a *DefinitionError.
func (cp *CUEParser) Parse(_ context.Context, sources []string) (*BuildDefinition, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var (
		value       cue.Value
		sourceFiles []string
		problems    []ValidationError
	)
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var (
			val   cue.Value
			files []string
			errs  []ValidationError
		)
		if info.IsDir() {
			val, files, errs = cp.loadDirectory(source)
		} else {
			val, errs = cp.loadFile(source)
			files = []string{source}
		}
		problems = append(problems, errs...)
		sourceFiles = append(sourceFiles, files...)
		if val.Exists() {
			if value.Exists() {
				value = value.Unify(val)
			} else {
				value = val
			}
		}
	}
	if len(problems) > 0 {
		return nil, &DefinitionError{Errors: problems}
	}

	def, err := cp.extract(value)
	if err != nil {
		return nil, err
	}
	def.SourceFiles = sourceFiles
	return def, nil
}

// ParseInline parses CUE source held in memory.
func (cp *CUEParser) ParseInline(_ context.Context, content string) (*BuildDefinition, error) {
	val := cp.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return nil, &DefinitionError{Errors: convertCUEErrors(err)}
	}
	def, err := cp.extract(val)
	if err != nil {
		return nil, err
	}
	def.SourceFiles = []string{"inline"}
	return def, nil
}

func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, nil, []ValidationError{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}
	return val, files, nil
}

func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

func (cp *CUEParser) extract(val cue.Value) (*BuildDefinition, error) {
	if err := val.Err(); err != nil {
		return nil, &DefinitionError{Errors: convertCUEErrors(err)}
	}

	projectVal := val.LookupPath(cue.ParsePath("project"))
	if !projectVal.Exists() {
		return nil, &DefinitionError{Errors: []ValidationError{errorf("project", "no project declared")}}
	}

	var problems []ValidationError
	project := cp.extractProject("project", "", projectVal, &problems)
	if len(problems) > 0 {
		return nil, &DefinitionError{Errors: problems}
	}
	return &BuildDefinition{Project: project, Format: "cue", ParsedAt: time.Now()}, nil
}

// cueProject holds the scalar fields of a project. Tasks and subprojects
// may be written either as maps keyed by name or as lists.
type cueProject struct {
	Name     string `json:"name"`
	Dir      string `json:"dir"`
	BuildDir string `json:"build_dir"`
}

func (cp *CUEParser) extractProject(path, key string, val cue.Value, problems *[]ValidationError) ProjectDef {
	unified, err := cp.schemas.Unify(SchemaProject, val)
	if err != nil {
		*problems = append(*problems, withPath(convertCUEErrors(err), path)...)
		return ProjectDef{}
	}

	var scalars cueProject
	if err := unified.Decode(&scalars); err != nil {
		*problems = append(*problems, errorf(path, "failed to decode project: %v", err))
		return ProjectDef{}
	}
	p := ProjectDef{Name: scalars.Name, Dir: scalars.Dir, BuildDir: scalars.BuildDir}
	if p.Name == "" {
		p.Name = key
	}

	eachEntry(unified.LookupPath(cue.ParsePath("tasks")), path+".tasks", problems, func(k, ep string, v cue.Value) {
		var t TaskDef
		if err := v.Decode(&t); err != nil {
			*problems = append(*problems, errorf(ep, "failed to decode task: %v", err))
			return
		}
		if t.Name == "" {
			t.Name = k
		}
		p.Tasks = append(p.Tasks, t)
	})

	eachEntry(unified.LookupPath(cue.ParsePath("subprojects")), path+".subprojects", problems, func(k, ep string, v cue.Value) {
		p.Subprojects = append(p.Subprojects, cp.extractProject(ep, k, v, problems))
	})
	return p
}

// eachEntry visits the fields of a struct in declaration order, or the
// elements of a list. Map keys are passed as names; list elements get "".
func eachEntry(val cue.Value, path string, problems *[]ValidationError, fn func(key, path string, v cue.Value)) {
	if !val.Exists() {
		return
	}
	switch val.IncompleteKind() {
	case cue.StructKind:
		iter, err := val.Fields()
		if err != nil {
			*problems = append(*problems, errorf(path, "failed to iterate: %v", err))
			return
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			fn(name, path+"."+name, iter.Value())
		}
	case cue.ListKind:
		list, err := val.List()
		if err != nil {
			*problems = append(*problems, errorf(path, "failed to list: %v", err))
			return
		}
		for i := 0; list.Next(); i++ {
			fn("", fmt.Sprintf("%s[%d]", path, i), list.Value())
		}
	default:
		*problems = append(*problems, errorf(path, "expected a struct or list, got %v", val.IncompleteKind()))
	}
}

func withPath(errs []ValidationError, path string) []ValidationError {
	for i := range errs {
		if errs[i].Path == "" {
			errs[i].Path = path
		}
	}
	return errs
}

// convertCUEErrors flattens a CUE error into positioned validation errors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}
	return out
}

// ExportJSON renders a definition the way the CUE front end would accept it
// back, for `assemble validate --print`.
func ExportJSON(def *BuildDefinition) ([]byte, error) {
	data, err := json.MarshalIndent(map[string]any{"project": def.Project}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode definition: %w", err)
	}
	return data, nil
}
