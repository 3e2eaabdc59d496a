package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}
	if s.Cache.Backend != CacheBackendFile {
		t.Errorf("Expected file cache backend, got %s", s.Cache.Backend)
	}
	if s.Watch.DebounceMS != 500 {
		t.Errorf("Expected 500ms debounce, got %d", s.Watch.DebounceMS)
	}
}

func TestLoadSettings_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "assemble.yaml", `
workers: 3
continue_on_failure: true
cache:
  backend: sqlite
telemetry:
  logging:
    level: debug
  tracing:
    export_timeout: 5s
`)
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Workers != 3 || !s.ContinueOnFailure {
		t.Errorf("Expected workers 3 and continue, got %d %v", s.Workers, s.ContinueOnFailure)
	}
	if s.Cache.Backend != CacheBackendSQLite {
		t.Errorf("Expected sqlite backend, got %s", s.Cache.Backend)
	}
	if s.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", s.Telemetry.Logging.Level)
	}
	if s.Telemetry.Tracing.ExportTimeout != 5*time.Second {
		t.Errorf("Expected 5s export timeout, got %v", s.Telemetry.Tracing.ExportTimeout)
	}
	// Untouched fields keep their defaults.
	if s.Telemetry.Logging.Format != "console" {
		t.Errorf("Expected default console format, got %s", s.Telemetry.Logging.Format)
	}
}

func TestLoadSettings_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "assemble.toml", `
workers = 2

[policy]
enabled = false

[telemetry.metrics]
enabled = true
`)
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", s.Workers)
	}
	if s.Policy.Enabled {
		t.Error("Expected policy to be disabled")
	}
	if !s.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics to be enabled")
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"negative workers", "assemble.yaml", "workers: -1\n"},
		{"unknown backend", "assemble.yaml", "cache:\n  backend: redis\n"},
		{"bad log level", "assemble.yaml", "telemetry:\n  logging:\n    level: loud\n"},
		{"bad yaml", "assemble.yaml", "workers: [\n"},
		{"unsupported format", "assemble.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			if _, err := LoadSettings(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestFindSettings(t *testing.T) {
	dir := t.TempDir()
	if got := FindSettings(dir); got != "" {
		t.Errorf("Expected no settings file, got %s", got)
	}
	writeFile(t, dir, "assemble.toml", "workers = 1\n")
	yml := writeFile(t, dir, "assemble.yml", "workers: 2\n")
	if got := FindSettings(dir); got != yml {
		t.Errorf("Expected %s to win, got %s", yml, got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ASSEMBLE_WORKERS":       "7",
		"ASSEMBLE_CACHE_BACKEND": "sqlite",
		"LOG_LEVEL":              "warn",
	}
	s := DefaultSettings()
	if err := s.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Workers != 7 || s.Cache.Backend != "sqlite" || s.Telemetry.Logging.Level != "warn" {
		t.Errorf("Expected env overrides, got %+v", s)
	}

	env["ASSEMBLE_WORKERS"] = "many"
	if err := s.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Error("Expected error for non-numeric workers")
	}
}

func TestLoadSettingsFromDir_Defaults(t *testing.T) {
	t.Setenv("ASSEMBLE_WORKERS", "")
	t.Setenv("ASSEMBLE_CACHE_BACKEND", "")
	t.Setenv("LOG_LEVEL", "")
	s, err := LoadSettingsFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Workers != 0 {
		t.Errorf("Expected default workers 0, got %d", s.Workers)
	}
}
