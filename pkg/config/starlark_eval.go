package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs build.star scripts. A script declares its root
// project with exactly one top-level project() call:
//
//	compile = task("compile", type="exec", command="go", args=["build"])
//	project(name="app", tasks=[compile, task("build", depends_on=["compile"])],
//	        subprojects=[subproject("lib", tasks=[task("test")])])
//
// Builtins: task, project, subproject, glob and env. Because from is a
// reserved word in Starlark, copy tasks take their sources as copy_from.
type StarlarkEvaluator struct {
	timeout time.Duration
	getenv  func(string) (string, bool)
}

// NewStarlarkEvaluator creates an evaluator that aborts scripts running longer than timeout.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout, getenv: os.LookupEnv}
}

// Parse evaluates a build.star file. glob() patterns are relative to the
// file's directory.
func (se *StarlarkEvaluator) Parse(ctx context.Context, path string) (*BuildDefinition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return se.Evaluate(ctx, path, src, filepath.Dir(path))
}

// Evaluate runs script source. The thread is cancelled when ctx is done or
// the timeout expires.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, src []byte, dir string) (*BuildDefinition, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	b := &starlarkBuild{dir: dir, getenv: se.getenv}
	thread := &starlark.Thread{
		Name:  "assemble",
		Print: func(*starlark.Thread, string) {},
	}
	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(evalCtx.Err().Error())
	})
	defer stop()

	predeclared := starlark.StringDict{
		"struct":     starlark.NewBuiltin("struct", starlarkstruct.Make),
		"task":       starlark.NewBuiltin("task", b.task),
		"project":    starlark.NewBuiltin("project", b.project),
		"subproject": starlark.NewBuiltin("subproject", b.subproject),
		"glob":       starlark.NewBuiltin("glob", b.glob),
		"env":        starlark.NewBuiltin("env", b.env),
	}

	if _, err := starlark.ExecFile(thread, filename, src, predeclared); err != nil {
		if evalCtx.Err() != nil {
			return nil, fmt.Errorf("starlark execution of %s aborted: %w", filename, evalCtx.Err())
		}
		return nil, &DefinitionError{Errors: []ValidationError{starlarkError(filename, err)}}
	}
	if b.root == nil {
		return nil, &DefinitionError{Errors: []ValidationError{{
			File: filename, Message: "no project() call", Severity: "error",
		}}}
	}

	p, err := decodeProject(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to decode project from %s: %w", filename, err)
	}
	return &BuildDefinition{
		Project:     p,
		SourceFiles: []string{filename},
		Format:      "starlark",
		ParsedAt:    time.Now(),
	}, nil
}

// starlarkBuild collects the declarations of one script.
type starlarkBuild struct {
	dir    string
	getenv func(string) (string, bool)
	root   *starlarkstruct.Struct
}

var taskFields = map[string]bool{
	"type": true, "description": true, "group": true,
	"depends_on": true, "finalized_by": true, "runs_before": true, "runs_after": true,
	"inputs": true, "input_files": true, "source_files": true, "output_files": true,
	"command": true, "args": true, "working_dir": true, "env": true, "ignore_exit_code": true,
	"into": true, "paths": true,
}

var (
	taskConstructor    = starlark.String("task")
	projectConstructor = starlark.String("project")
)

// task(name, **fields) returns a task declaration.
func (b *starlarkBuild) task(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, nil, 1, &name); err != nil {
		return nil, err
	}
	fields := starlark.StringDict{"name": starlark.String(name)}
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		switch {
		case key == "name":
			return nil, fmt.Errorf("%s: name is positional", fn.Name())
		case key == "copy_from":
			key = "from"
		case !taskFields[key]:
			return nil, fmt.Errorf("%s: unknown field %q", fn.Name(), key)
		}
		fields[key] = kv[1]
	}
	return starlarkstruct.FromStringDict(taskConstructor, fields), nil
}

func (b *starlarkBuild) projectValue(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, requireName bool) (*starlarkstruct.Struct, error) {
	var (
		name, dir, buildDir string
		tasks               = starlark.NewList(nil)
		subprojects         = starlark.NewList(nil)
	)
	params := []any{"name?", &name, "dir?", &dir, "build_dir?", &buildDir, "tasks?", &tasks, "subprojects?", &subprojects}
	if requireName {
		params[0] = "name"
	}
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, params...); err != nil {
		return nil, err
	}
	if err := checkElements(fn.Name(), "tasks", tasks, taskConstructor); err != nil {
		return nil, err
	}
	if err := checkElements(fn.Name(), "subprojects", subprojects, projectConstructor); err != nil {
		return nil, err
	}
	return starlarkstruct.FromStringDict(projectConstructor, starlark.StringDict{
		"name":        starlark.String(name),
		"dir":         starlark.String(dir),
		"build_dir":   starlark.String(buildDir),
		"tasks":       tasks,
		"subprojects": subprojects,
	}), nil
}

// project(name="", dir="", build_dir="", tasks=[], subprojects=[]) declares the root.
func (b *starlarkBuild) project(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if b.root != nil {
		return nil, fmt.Errorf("%s: root project already declared", fn.Name())
	}
	p, err := b.projectValue(fn, args, kwargs, false)
	if err != nil {
		return nil, err
	}
	b.root = p
	return p, nil
}

// subproject(name, ...) returns a project for another project's subprojects list.
func (b *starlarkBuild) subproject(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return b.projectValue(fn, args, kwargs, true)
}

// glob(pattern, ...) returns the sorted files matching any pattern.
func (b *starlarkBuild) glob(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	seen := map[string]bool{}
	var out []string
	for i, arg := range args {
		pattern, ok := starlark.AsString(arg)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a string", fn.Name(), i+1)
		}
		matches, err := filepath.Glob(filepath.Join(b.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(b.dir, m)
			if err != nil {
				rel = m
			}
			if !seen[rel] {
				seen[rel] = true
				out = append(out, rel)
			}
		}
	}
	sort.Strings(out)
	values := make([]starlark.Value, len(out))
	for i, s := range out {
		values[i] = starlark.String(s)
	}
	return starlark.NewList(values), nil
}

// env(name, default=None) reads an environment variable.
func (b *starlarkBuild) env(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := b.getenv(name); ok {
		return starlark.String(v), nil
	}
	return def, nil
}

func checkElements(fn, field string, list *starlark.List, want starlark.String) error {
	for i := 0; i < list.Len(); i++ {
		s, ok := list.Index(i).(*starlarkstruct.Struct)
		if !ok || s.Constructor() != want {
			return fmt.Errorf("%s: %s[%d] must be a %s(...) value, got %s", fn, field, i, want.GoString(), list.Index(i).Type())
		}
	}
	return nil
}

// decodeProject converts the script's project struct into a ProjectDef by
// way of its JSON form, so field names match the other front ends.
func decodeProject(root *starlarkstruct.Struct) (ProjectDef, error) {
	raw, err := fromStarlarkValue(root)
	if err != nil {
		return ProjectDef{}, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return ProjectDef{}, err
	}
	var p ProjectDef
	if err := json.Unmarshal(data, &p); err != nil {
		return ProjectDef{}, err
	}
	return p, nil
}

func starlarkError(filename string, err error) ValidationError {
	v := ValidationError{File: filename, Message: err.Error(), Severity: "error"}
	if evalErr, ok := err.(*starlark.EvalError); ok {
		v.Message = evalErr.Msg
		for i := 0; i < len(evalErr.CallStack); i++ {
			if pos := evalErr.CallStack.At(i).Pos; pos.Line > 0 {
				v.Line = int(pos.Line)
				v.Column = int(pos.Col)
				break
			}
		}
	}
	return v
}

// fromStarlarkValue converts a Starlark value to plain Go values.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
