package work

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assemble/assemble/pkg/identifier"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	id := identifier.MustTask(":root:app:compile")

	loaded, err := store.Load(ctx, id)
	if err != nil || loaded != nil {
		t.Fatalf("Expected (nil, nil) for missing history, got (%v, %v)", loaded, err)
	}

	out, err := NewOutput(nil, map[string]string{"version": "1.0"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	h := &History{Input: NewInput(id, []string{"x"}), Output: out}
	if err := store.Save(ctx, h); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	loaded, err = store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if loaded.Input.Changed(&h.Input) {
		t.Error("Expected loaded input to equal saved input")
	}
	if loaded.Output.Data["version"] != "1.0" {
		t.Errorf("Expected output data to survive, got %v", loaded.Output.Data)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("Expected removing twice to succeed, got: %v", err)
	}
}

func TestFileStore_RejectsHistoryOfOtherTask(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	a := identifier.MustTask(":root:a")
	b := identifier.MustTask(":root:b")

	if err := store.Save(ctx, &History{Input: NewInput(b, []string{"x"})}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, err := os.ReadFile(store.path(b))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, store.path(a), string(data))

	loaded, err := store.Load(ctx, a)
	if err == nil {
		t.Fatalf("Expected error for a record naming %s, got %v", b, loaded)
	}
}

func TestDecide(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")
	writeFile(t, outFile, "result")

	id := identifier.MustTask(":root:gen")
	out, err := NewOutput([]string{outFile}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	prev := &History{Input: NewInput(id, []string{"in"}), Output: out}

	tests := []struct {
		name       string
		prev       *History
		current    Input
		hasOutputs bool
		checks     []func() bool
		upToDate   bool
		reason     string
	}{
		{"no inputs", prev, NewInput(id, nil), true, nil, false, ReasonNoInputs},
		{"no outputs", prev, NewInput(id, []string{"in"}), false, nil, false, ReasonNoOutputs},
		{"no history", nil, NewInput(id, []string{"in"}), true, nil, false, ReasonNoHistory},
		{"inputs changed", prev, NewInput(id, []string{"other"}), true, nil, false, ReasonInputsChanged},
		{"check fails", prev, NewInput(id, []string{"in"}), true, []func() bool{func() bool { return false }}, false, ReasonCheckFailed},
		{"up to date", prev, NewInput(id, []string{"in"}), true, []func() bool{func() bool { return true }}, true, ReasonUpToDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.prev, tt.current, tt.hasOutputs, tt.checks...)
			if d.UpToDate != tt.upToDate || d.Reason != tt.reason {
				t.Errorf("Expected (%v, %q), got (%v, %q)", tt.upToDate, tt.reason, d.UpToDate, d.Reason)
			}
		})
	}
}

func TestOutput_TouchedFileIsStale(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")
	writeFile(t, outFile, "result")

	out, err := NewOutput([]string{dir}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !out.UpToDate() {
		t.Fatal("Expected fresh output to be up to date")
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(outFile, future, future); err != nil {
		t.Fatal(err)
	}
	if out.UpToDate() {
		t.Error("Expected touched output to be stale")
	}
}

func TestOutput_AddedOrRemovedFileIsStale(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	out, err := NewOutput([]string{dir}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	extra := filepath.Join(dir, "b.txt")
	writeFile(t, extra, "b")
	if out.UpToDate() {
		t.Error("Expected extra file to make output stale")
	}

	_ = os.Remove(extra)
	_ = os.Remove(filepath.Join(dir, "a.txt"))
	if out.UpToDate() {
		t.Error("Expected missing file to make output stale")
	}
}
