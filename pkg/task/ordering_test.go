package task

import (
	"testing"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
)

func TestBuildables(t *testing.T) {
	a := identifier.MustTask(":root:a")
	b := identifier.MustTask(":root:sub:b")
	lookup := &fakeLookup{ids: []identifier.TaskID{a, b}}

	tests := []struct {
		name      string
		buildable Buildable
		want      []identifier.TaskID
		wantCode  string
	}{
		{name: "by id", buildable: ByID(a), want: []identifier.TaskID{a}},
		{name: "by shorthand", buildable: ByName("sub:b"), want: []identifier.TaskID{b}},
		{name: "collection dedupes", buildable: Collection{ByID(b), ByName("a"), ByID(a)}, want: []identifier.TaskID{a, b}},
		{name: "unknown id", buildable: ByID(identifier.MustTask(":root:nope")), wantCode: engine.ErrCodeTaskNotFound},
		{name: "unknown name", buildable: ByName("nope"), wantCode: engine.ErrCodeTaskNotFound},
		{name: "file collection", buildable: NewFileCollection("x").BuiltByTasks(ByID(b)), want: []identifier.TaskID{b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tt.buildable.BuiltBy(lookup)
			if tt.wantCode != "" {
				if !engine.HasCode(err, tt.wantCode) {
					t.Fatalf("Expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			got := ids.Sorted()
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestOrderingKind_Pulls(t *testing.T) {
	if !DependsOn.Pulls() || !FinalizedBy.Pulls() {
		t.Error("Expected DependsOn and FinalizedBy to pull targets")
	}
	if RunsBefore.Pulls() || RunsAfter.Pulls() {
		t.Error("Expected soft orderings not to pull targets")
	}
}
