package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BuildFileNames are searched in order by FindBuildFile.
var BuildFileNames = []string{"assemble.cue", "assemble.hcl", "build.star"}

// FindBuildFile returns the first build file in dir, or "" when there is none.
func FindBuildFile(dir string) string {
	for _, name := range BuildFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Loader parses build files with the front end matching their extension.
type Loader struct {
	cue      *CUEParser
	hcl      *HCLParser
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader with every front end.
func NewLoader() (*Loader, error) {
	cp, err := NewCUEParser()
	if err != nil {
		return nil, err
	}
	return &Loader{
		cue:      cp,
		hcl:      NewHCLParser(),
		starlark: NewStarlarkEvaluator(0),
	}, nil
}

// Load parses and validates one build file.
func (l *Loader) Load(ctx context.Context, path string) (*BuildDefinition, error) {
	var (
		def *BuildDefinition
		err error
	)
	switch filepath.Ext(path) {
	case ".cue":
		def, err = l.cue.Parse(ctx, []string{path})
	case ".hcl":
		def, err = l.hcl.Parse(ctx, path)
	case ".star":
		def, err = l.starlark.Parse(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported build file %s", path)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDir finds and loads the build file in dir.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*BuildDefinition, error) {
	path := FindBuildFile(dir)
	if path == "" {
		return nil, fmt.Errorf("no build file in %s (looked for %v)", dir, BuildFileNames)
	}
	return l.Load(ctx, path)
}
