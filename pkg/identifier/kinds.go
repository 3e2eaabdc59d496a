package identifier

// TaskID identifies a task. Its parent is always the owning project.
type TaskID struct {
	ID
}

// ProjectID identifies a project.
type ProjectID struct {
	ID
}

// RootName is the default name of the root project.
const RootName = "root"

// Root returns the default root project id.
func Root() ProjectID {
	return ProjectID{ID{repr: RootName}}
}

// ParseTask parses a fully qualified task id. A task id needs at least a
// project part and a name part.
func ParseTask(s string) (TaskID, error) {
	id, err := Parse(s)
	if err != nil {
		return TaskID{}, err
	}
	if _, ok := id.Parent(); !ok {
		return TaskID{}, &InvalidIDError{Input: s, Reason: "task id must include its project"}
	}
	return TaskID{id}, nil
}

// MustTask is ParseTask that panics on error. Intended for tests and literals.
func MustTask(s string) TaskID {
	id, err := ParseTask(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseProject parses a project id.
func ParseProject(s string) (ProjectID, error) {
	id, err := Parse(s)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID{id}, nil
}

// MustProject builds a project id from parts and panics on error.
func MustProject(parts ...string) ProjectID {
	id, err := FromParts(parts...)
	if err != nil {
		panic(err)
	}
	return ProjectID{id}
}

// Task creates the id of a task owned by this project.
func (p ProjectID) Task(name string) (TaskID, error) {
	id, err := p.Join(name)
	if err != nil {
		return TaskID{}, err
	}
	return TaskID{id}, nil
}

// Subproject creates the id of a child project.
func (p ProjectID) Subproject(name string) (ProjectID, error) {
	id, err := p.Join(name)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID{id}, nil
}

// ParentProject returns the enclosing project, if any.
func (p ProjectID) ParentProject() (ProjectID, bool) {
	parent, ok := p.Parent()
	return ProjectID{parent}, ok
}

// Project returns the owning project of a task.
func (t TaskID) Project() ProjectID {
	parent, _ := t.Parent()
	return ProjectID{parent}
}

// Less orders task ids.
func (t TaskID) Less(other TaskID) bool {
	return t.Compare(other.ID) < 0
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TaskID) UnmarshalText(b []byte) error {
	parsed, err := ParseTask(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
