package task

import (
	"path/filepath"

	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/work"
)

// FileCollection is a lazily evaluated list of paths together with the tasks
// that produce them. Relative paths are resolved against a base directory
// when the collection is expanded.
type FileCollection struct {
	paths   []lazy.Provider[string]
	builtBy Collection
}

// NewFileCollection creates a collection of fixed paths.
func NewFileCollection(paths ...string) *FileCollection {
	fc := &FileCollection{}
	fc.Add(paths...)
	return fc
}

// Add appends fixed paths.
func (fc *FileCollection) Add(paths ...string) *FileCollection {
	for _, p := range paths {
		fc.paths = append(fc.paths, lazy.Just(p))
	}
	return fc
}

// AddProvider appends a lazily computed path. A provider that is also
// Buildable, such as a task output, records its producer.
func (fc *FileCollection) AddProvider(p lazy.Provider[string]) *FileCollection {
	fc.paths = append(fc.paths, p)
	if b, ok := p.(Buildable); ok {
		fc.builtBy = append(fc.builtBy, b)
	}
	return fc
}

// BuiltByTasks records additional producers.
func (fc *FileCollection) BuiltByTasks(b ...Buildable) *FileCollection {
	fc.builtBy = append(fc.builtBy, b...)
	return fc
}

// HasProducers reports whether any producer was recorded.
func (fc *FileCollection) HasProducers() bool {
	return len(fc.builtBy) > 0
}

// Paths evaluates the path providers and resolves them against base.
func (fc *FileCollection) Paths(base string) ([]string, error) {
	out := make([]string, 0, len(fc.paths))
	for _, p := range fc.paths {
		v, err := p.FallibleGet()
		if err != nil {
			return nil, err
		}
		out = append(out, resolvePath(base, v))
	}
	return out, nil
}

// Files expands Paths to regular files.
func (fc *FileCollection) Files(base string) ([]string, error) {
	paths, err := fc.Paths(base)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, p := range paths {
		expanded, err := work.ExpandFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	return files, nil
}

// BuiltBy implements Buildable.
func (fc *FileCollection) BuiltBy(lookup Lookup) (IDSet, error) {
	return fc.builtBy.BuiltBy(lookup)
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
