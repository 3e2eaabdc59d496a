package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
)

// Built-in schema names.
const (
	SchemaTask    = "task"
	SchemaProject = "project"
)

// SchemaRegistry holds CUE schemas that definitions are unified with.
// Values from one registry may only be unified with values built by the same
// cue.Context.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in task and project schemas.
func NewSchemaRegistry(ctx *cue.Context) (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	builtin := ctx.CompileString(builtinSchema, cue.Filename("builtin.cue"))
	if err := builtin.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile built-in schema: %w", err)
	}
	for name, def := range map[string]string{SchemaTask: "#Task", SchemaProject: "#Project"} {
		v := builtin.LookupPath(cue.ParsePath(def))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("built-in schema %s: %w", def, err)
		}
		sr.schemas[name] = v
	}
	return sr, nil
}

// RegisterSchema compiles schema and stores it under name, replacing any
// previous schema of that name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with a named schema and requires a concrete result.
func (sr *SchemaRegistry) Unify(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema encodes a Go value and validates it against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(name string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if _, err := sr.Unify(name, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateTask validates a task definition against the task schema.
func (sr *SchemaRegistry) ValidateTask(t TaskDef) error {
	return sr.ValidateAgainstSchema(SchemaTask, t)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subprojects are left open here and unified with #Project one level at a
// time by the parser, so the schema needs no recursive definition.
const builtinSchema = `
#Name: =~"^[a-zA-Z][\\w-]*$"

#Task: {
	name?:        #Name
	type?:        "empty" | "exec" | "copy" | "delete"
	description?: string
	group?:       string

	depends_on?:   [...string]
	finalized_by?: [...string]
	runs_before?:  [...string]
	runs_after?:   [...string]

	inputs?:       {[string]: string}
	input_files?:  [...string]
	source_files?: [...string]
	output_files?: [...string]

	command?:          string
	args?:             [...string]
	working_dir?:      string
	env?:              {[string]: string}
	ignore_exit_code?: bool

	from?: [...string]
	into?: string

	paths?: [...string]
}

#Project: {
	name?:        #Name
	dir?:         string
	build_dir?:   string
	tasks?:       {[=~"^[a-zA-Z][\\w-]*$"]: #Task} | [...#Task]
	subprojects?: {[=~"^[a-zA-Z][\\w-]*$"]: {...}} | [...{...}]
}
`
