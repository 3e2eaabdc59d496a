package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/assemble/assemble/pkg/telemetry"
)

// Cache backends.
const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
)

// SettingsFileNames are searched in order by FindSettings.
var SettingsFileNames = []string{"assemble.yaml", "assemble.yml", "assemble.toml"}

// Settings configures a build invocation. Command-line flags override them.
type Settings struct {
	// Workers is the worker pool size. Zero means one per CPU.
	Workers int `yaml:"workers" toml:"workers" validate:"min=0,max=1024"`

	ContinueOnFailure bool `yaml:"continue_on_failure" toml:"continue_on_failure"`

	// BuildFile overrides build file discovery. Relative to the workspace root.
	BuildFile string `yaml:"build_file" toml:"build_file"`

	Cache  CacheSettings  `yaml:"cache" toml:"cache"`
	Policy PolicySettings `yaml:"policy" toml:"policy"`
	Watch  WatchSettings  `yaml:"watch" toml:"watch"`

	Telemetry telemetry.Config `yaml:"telemetry" toml:"telemetry" validate:"-"`
}

// CacheSettings selects where task histories are kept.
type CacheSettings struct {
	Backend string `yaml:"backend" toml:"backend" validate:"oneof=file sqlite"`
	// Path defaults to the workspace cache directory.
	Path string `yaml:"path" toml:"path"`
}

// PolicySettings configures build definition linting.
type PolicySettings struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Paths are extra .rego files or directories loaded after the built-in rules.
	Paths []string `yaml:"paths" toml:"paths"`
	// FailOnWarning treats warnings as errors before a build.
	FailOnWarning bool `yaml:"fail_on_warning" toml:"fail_on_warning"`
}

// WatchSettings configures continuous builds.
type WatchSettings struct {
	DebounceMS int      `yaml:"debounce_ms" toml:"debounce_ms" validate:"min=0"`
	Ignore     []string `yaml:"ignore" toml:"ignore"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Cache:     CacheSettings{Backend: CacheBackendFile},
		Policy:    PolicySettings{Enabled: true},
		Watch:     WatchSettings{DebounceMS: 500},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// FindSettings returns the first settings file in dir, or "" when there is none.
func FindSettings(dir string) string {
	for _, name := range SettingsFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadSettings reads a YAML or TOML settings file on top of the defaults and
// validates the result.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	s := DefaultSettings()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// LoadSettingsFromDir loads the settings file in dir, falling back to the
// defaults, then applies environment overrides.
func LoadSettingsFromDir(dir string) (*Settings, error) {
	s := DefaultSettings()
	if path := FindSettings(dir); path != "" {
		loaded, err := LoadSettings(path)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if err := s.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// ApplyEnv overrides settings from ASSEMBLE_WORKERS, ASSEMBLE_CACHE_BACKEND
// and LOG_LEVEL.
func (s *Settings) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ASSEMBLE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ASSEMBLE_WORKERS %q: %w", v, err)
		}
		s.Workers = n
	}
	if v := getenv("ASSEMBLE_CACHE_BACKEND"); v != "" {
		s.Cache.Backend = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		s.Telemetry.Logging.Level = v
	}
	return nil
}

// Validate checks the settings and the embedded telemetry configuration.
func (s *Settings) Validate() error {
	if err := defaultValidator.Struct(s); err != nil {
		return &DefinitionError{Errors: fromValidator(err)}
	}
	return s.Telemetry.Validate()
}
