package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

const testRego = `# Forbids shell commands.
# severity: error
package test.policy

import rego.v1

deny contains "shell" if {
	some t in input.tasks
	t.command == "sh"
}
`

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "no-shell.rego")
	writePolicy(t, path, testRego)

	p, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if p.Name != "no-shell" {
		t.Errorf("Expected name 'no-shell', got '%s'", p.Name)
	}
	if p.Description != "Forbids shell commands." {
		t.Errorf("Expected description from comments, got '%s'", p.Description)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", p.Severity)
	}
	if !p.Enabled || p.Source != path {
		t.Errorf("Expected enabled policy from %s, got %+v", path, p)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	good := filepath.Join(dir, "p.json")
	writePolicy(t, good, `{"name": "from-json", "rego": "package j\n"}`)
	p, err := loader.loadFromFile(good)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if p.Name != "from-json" || p.Severity != SeverityWarning || !p.Enabled {
		t.Errorf("Unexpected policy: %+v", p)
	}

	nameless := filepath.Join(dir, "q.json")
	writePolicy(t, nameless, `{"rego": "package j\n"}`)
	if _, err := loader.loadFromFile(nameless); err == nil {
		t.Error("Expected error for policy without name")
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "a.rego"), testRego)
	writePolicy(t, filepath.Join(dir, "nested", "b.rego"), testRego)
	writePolicy(t, filepath.Join(dir, "README.md"), "ignored")
	writePolicy(t, filepath.Join(dir, "broken.json"), "{")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "no-shell.rego"), testRego)

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	p, err := eng.GetPolicy("no-shell")
	if err != nil {
		t.Fatalf("Expected loaded policy, got: %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", p.Severity)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	loader.ReloadDelay = 20 * time.Millisecond
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "a.rego"), testRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		counts []int
	)
	reloaded := make(chan struct{}, 4)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		mu.Lock()
		counts = append(counts, len(p))
		mu.Unlock()
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	writePolicy(t, filepath.Join(dir, "b.rego"), testRego)

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
	mu.Lock()
	defer mu.Unlock()
	if counts[len(counts)-1] != 2 {
		t.Errorf("Expected 2 policies after reload, got %v", counts)
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "a.rego")
	writePolicy(t, path, testRego)

	if _, err := loader.loadFromFile(path); err != nil {
		t.Fatal(err)
	}
	writePolicy(t, path, "# Changed.\npackage a\n")
	cached, _ := loader.loadFromFile(path)
	if cached.Description != "Forbids shell commands." {
		t.Errorf("Expected cached policy, got %q", cached.Description)
	}

	loader.ClearCache()
	fresh, _ := loader.loadFromFile(path)
	if fresh.Description != "Changed." {
		t.Errorf("Expected reloaded policy, got %q", fresh.Description)
	}
}
