package work

import (
	"maps"
	"os"
	"slices"
	"time"
)

// Output records the files a task produced.
type Output struct {
	Timestamp time.Time `json:"timestamp"`
	// Roots are the declared output paths as given by the task.
	Roots []string `json:"roots"`
	// Files is Roots expanded to regular files.
	Files []string          `json:"files"`
	Data  map[string]string `json:"data,omitempty"`
}

// NewOutput expands roots and stamps the snapshot with the current time.
func NewOutput(roots []string, data map[string]string) (Output, error) {
	out := Output{Timestamp: time.Now(), Roots: slices.Clone(roots), Data: maps.Clone(data)}
	files, err := expandAll(roots)
	if err != nil {
		return Output{}, err
	}
	out.Files = files
	return out, nil
}

// UpToDate reports whether the recorded files are unchanged on disk: the
// roots expand to the same set and no file was modified after Timestamp.
func (o Output) UpToDate() bool {
	current, err := expandAll(o.Roots)
	if err != nil || !slices.Equal(current, o.Files) {
		return false
	}
	for _, f := range o.Files {
		info, err := os.Stat(f)
		if err != nil {
			return false
		}
		if info.ModTime().After(o.Timestamp) {
			return false
		}
	}
	return true
}

func expandAll(roots []string) ([]string, error) {
	var files []string
	for _, r := range roots {
		expanded, err := ExpandFiles(r)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
