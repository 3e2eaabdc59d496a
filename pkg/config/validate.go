package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/assemble/assemble/pkg/identifier"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identpart", func(fl validator.FieldLevel) bool {
		return identifier.ValidatePart(fl.Field().String()) == nil
	})
	return v
}

var defaultValidator = newValidator()

// ValidateDefinition checks struct constraints and the rules that span
// fields: unique names and the fields each task type needs. Every problem
// is reported, not only the first.
func ValidateDefinition(def *BuildDefinition) error {
	var problems []ValidationError

	if err := defaultValidator.Struct(def); err != nil {
		problems = append(problems, fromValidator(err)...)
	}
	problems = append(problems, checkProject("project", &def.Project, true)...)

	if len(problems) > 0 {
		return &DefinitionError{Errors: problems}
	}
	return nil
}

func checkProject(path string, p *ProjectDef, root bool) []ValidationError {
	var problems []ValidationError
	if !root && p.Name == "" {
		problems = append(problems, errorf(path, "subproject name is required"))
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		tp := fmt.Sprintf("%s.tasks.%s", path, t.Name)
		if seen[t.Name] {
			problems = append(problems, errorf(tp, "duplicate task name %q", t.Name))
		}
		seen[t.Name] = true
		problems = append(problems, checkTask(tp, t)...)
	}

	names := make(map[string]bool, len(p.Subprojects))
	for i := range p.Subprojects {
		sub := &p.Subprojects[i]
		sp := fmt.Sprintf("%s.subprojects.%s", path, sub.Name)
		if sub.Name != "" && names[sub.Name] {
			problems = append(problems, errorf(sp, "duplicate subproject name %q", sub.Name))
		}
		names[sub.Name] = true
		problems = append(problems, checkProject(sp, sub, false)...)
	}
	return problems
}

func checkTask(path string, t *TaskDef) []ValidationError {
	var problems []ValidationError
	switch t.EffectiveType() {
	case TaskTypeExec:
		if t.Command == "" {
			problems = append(problems, errorf(path, "exec task requires a command"))
		}
	case TaskTypeCopy:
		if t.Into == "" {
			problems = append(problems, errorf(path, "copy task requires into"))
		}
		if len(t.From) == 0 {
			problems = append(problems, errorf(path, "copy task requires at least one from path"))
		}
	case TaskTypeDelete:
		if len(t.Paths) == 0 {
			problems = append(problems, errorf(path, "delete task requires at least one path"))
		}
	}
	return problems
}

func fromValidator(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{errorf("", "%v", err)}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errorf(fe.Namespace(), "failed %q validation (value %v)", fe.Tag(), fe.Value()))
	}
	return out
}
