package task

import (
	"fmt"
	"slices"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
)

// OrderingKind is the relation an ordering expresses.
type OrderingKind string

const (
	// DependsOn pulls the target into the graph and requires it to succeed first.
	DependsOn OrderingKind = "depends_on"
	// FinalizedBy pulls the target into the graph and runs it afterwards,
	// even on failure.
	FinalizedBy OrderingKind = "finalized_by"
	// RunsBefore orders this task before the target when both are scheduled.
	RunsBefore OrderingKind = "runs_before"
	// RunsAfter orders this task after the target when both are scheduled.
	RunsAfter OrderingKind = "runs_after"
)

// Pulls reports whether the kind adds its targets to the graph.
func (k OrderingKind) Pulls() bool {
	return k == DependsOn || k == FinalizedBy
}

// Ordering constrains an executable relative to a buildable.
type Ordering struct {
	Buildable Buildable
	Kind      OrderingKind
}

// Buildable is anything that resolves to the set of tasks producing it.
type Buildable interface {
	BuiltBy(lookup Lookup) (IDSet, error)
}

// IDSet is a set of task ids.
type IDSet map[identifier.TaskID]struct{}

// NewIDSet creates a set holding ids.
func NewIDSet(ids ...identifier.TaskID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id identifier.TaskID) { s[id] = struct{}{} }

// Contains reports membership.
func (s IDSet) Contains(id identifier.TaskID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every member of other.
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Sorted returns members in id order.
func (s IDSet) Sorted() []identifier.TaskID {
	out := make([]identifier.TaskID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b identifier.TaskID) int { return a.Compare(b.ID) })
	return out
}

// ByID references a task by its absolute id.
type ByID identifier.TaskID

// BuiltBy implements Buildable.
func (b ByID) BuiltBy(lookup Lookup) (IDSet, error) {
	id := identifier.TaskID(b)
	if !lookup.HasTask(id) {
		return nil, engine.NewConfigurationError(engine.ErrCodeTaskNotFound,
			"task not found", nil).WithTask(id)
	}
	return NewIDSet(id), nil
}

func (b ByID) String() string { return identifier.TaskID(b).String() }

// ByName references a task by absolute id or shorthand, resolved against the
// lookup of the task declaring the ordering.
type ByName string

// BuiltBy implements Buildable.
func (b ByName) BuiltBy(lookup Lookup) (IDSet, error) {
	id, err := lookup.FindTaskID(string(b))
	if err != nil {
		return nil, err
	}
	return NewIDSet(id), nil
}

// Collection is the union of several buildables.
type Collection []Buildable

// BuiltBy implements Buildable.
func (c Collection) BuiltBy(lookup Lookup) (IDSet, error) {
	out := NewIDSet()
	for _, b := range c {
		ids, err := b.BuiltBy(lookup)
		if err != nil {
			return nil, err
		}
		out.Union(ids)
	}
	return out, nil
}

// ResolveOrderings resolves every ordering of exec, attributing failures to
// the executable.
func ResolveOrderings(exec *Executable, lookup Lookup) (map[OrderingKind][]identifier.TaskID, error) {
	out := make(map[OrderingKind][]identifier.TaskID)
	for _, o := range exec.Orderings() {
		ids, err := o.Buildable.BuiltBy(lookup)
		if err != nil {
			return nil, fmt.Errorf("resolving %s of %s: %w", o.Kind, exec.ID(), err)
		}
		for _, id := range ids.Sorted() {
			if !slices.Contains(out[o.Kind], id) {
				out[o.Kind] = append(out[o.Kind], id)
			}
		}
	}
	return out, nil
}
