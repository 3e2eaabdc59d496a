package identifier

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "leading colon", input: ":root:app:compile", want: ":root:app:compile"},
		{name: "no leading colon", input: "root:app", want: ":root:app"},
		{name: "dash and underscore", input: "root:my-task_2", want: ":root:my-task_2"},
		{name: "empty", input: "", wantErr: true},
		{name: "only colon", input: ":", wantErr: true},
		{name: "empty part", input: "root::task", wantErr: true},
		{name: "starts with digit", input: "root:1task", wantErr: true},
		{name: "space", input: "root:my task", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.input)
			if tt.wantErr {
				var invalid *InvalidIDError
				if !errors.As(err, &invalid) {
					t.Fatalf("Expected InvalidIDError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if id.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, id.String())
			}
		})
	}
}

func TestID_Navigation(t *testing.T) {
	id, err := Parse(":root:app:compile")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if id.Name() != "compile" {
		t.Errorf("Expected name compile, got %s", id.Name())
	}

	parent, ok := id.Parent()
	if !ok || parent.String() != ":root:app" {
		t.Errorf("Expected parent :root:app, got %s (ok=%v)", parent, ok)
	}

	ancestors := id.Ancestors()
	if len(ancestors) != 2 || ancestors[0].String() != ":root:app" || ancestors[1].String() != ":root" {
		t.Errorf("Unexpected ancestors: %v", ancestors)
	}

	root, _ := Parse("root")
	if _, ok := root.Parent(); ok {
		t.Error("Expected single part id to have no parent")
	}
}

func TestID_IsShorthand(t *testing.T) {
	id, _ := Parse(":root:app:compile")

	tests := []struct {
		repr string
		want bool
	}{
		{"compile", true},
		{"app:compile", true},
		{"root:app:compile", true},
		{":root:app:compile", true},
		{":app:compile", false},
		{"pile", false},
		{"p:compile", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := id.IsShorthand(tt.repr); got != tt.want {
			t.Errorf("IsShorthand(%q) = %v, want %v", tt.repr, got, tt.want)
		}
	}
}

func TestProjectID_Task(t *testing.T) {
	proj := MustProject("root", "lib")

	task, err := proj.Task("build")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if task.String() != ":root:lib:build" {
		t.Errorf("Expected :root:lib:build, got %s", task)
	}
	if task.Project() != proj {
		t.Errorf("Expected project %s, got %s", proj, task.Project())
	}

	if _, err := proj.Task("bad name"); err == nil {
		t.Error("Expected error for invalid task name")
	}
}

func TestParseTask_RequiresProject(t *testing.T) {
	if _, err := ParseTask("build"); err == nil {
		t.Error("Expected error for task id without project")
	}
}

func TestTaskID_Ordering(t *testing.T) {
	a := MustTask(":root:a")
	b := MustTask(":root:b")
	nested := MustTask(":root:a:x")

	if !a.Less(b) || b.Less(a) {
		t.Errorf("Expected %s < %s", a, b)
	}
	if !a.Less(nested) {
		t.Errorf("Expected shorter prefix %s to sort before %s", a, nested)
	}
}

func TestTaskID_JSON(t *testing.T) {
	type wrapper struct {
		Task TaskID `json:"task"`
	}

	data, err := json.Marshal(wrapper{Task: MustTask(":root:build")})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != `{"task":":root:build"}` {
		t.Errorf("Unexpected encoding: %s", data)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if decoded.Task != MustTask(":root:build") {
		t.Errorf("Expected :root:build, got %s", decoded.Task)
	}
}

func TestID_Path(t *testing.T) {
	id, _ := Parse(":root:app:compile")
	if got := id.Path(); got != "root/app/compile" {
		t.Errorf("Expected root/app/compile, got %s", got)
	}
}
