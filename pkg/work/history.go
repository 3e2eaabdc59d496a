package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/workspace"
)

// History is the last successful execution of a task.
type History struct {
	Input  Input  `json:"input"`
	Output Output `json:"output"`
}

// Store persists task histories keyed by task id.
type Store interface {
	// Load returns nil without error when no history exists.
	Load(ctx context.Context, id identifier.TaskID) (*History, error)
	Save(ctx context.Context, h *History) error
	Remove(ctx context.Context, id identifier.TaskID) error
}

// FileStore keeps one JSON file per task below a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, usually Workspace.CachePath.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(id identifier.TaskID) string {
	return filepath.Join(s.dir, id.Path()+".json")
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, id identifier.TaskID) (*History, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", id, err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", id, err)
	}
	if h.Input.TaskID != id {
		return nil, fmt.Errorf("history for %s belongs to %s", id, h.Input.TaskID)
	}
	return &h, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %w", h.Input.TaskID, err)
	}
	return workspace.AtomicWrite(s.path(h.Input.TaskID), data)
}

// Remove implements Store.
func (s *FileStore) Remove(_ context.Context, id identifier.TaskID) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove history for %s: %w", id, err)
	}
	return nil
}

// Clear deletes every stored history.
func (s *FileStore) Clear() error {
	return os.RemoveAll(s.dir)
}

// Decision is the result of an up-to-date check.
type Decision struct {
	UpToDate bool
	Reason   string
}

// Reasons reported by Decide.
const (
	ReasonNoInputs       = "no inputs declared"
	ReasonNoOutputs      = "no outputs declared"
	ReasonNoHistory      = "no previous execution"
	ReasonInputsChanged  = "inputs changed"
	ReasonOutputsChanged = "outputs changed"
	ReasonCheckFailed    = "up-to-date check failed"
	ReasonUpToDate       = "inputs and outputs unchanged"
)

// Decide compares the current input against the previous history. A task
// is only up to date when it declares both inputs and outputs. checks are
// evaluated last and only when everything else is unchanged.
func Decide(prev *History, current Input, hasOutputs bool, checks ...func() bool) Decision {
	if !current.AnyInputs() {
		return Decision{Reason: ReasonNoInputs}
	}
	if !hasOutputs {
		return Decision{Reason: ReasonNoOutputs}
	}
	if prev == nil {
		return Decision{Reason: ReasonNoHistory}
	}
	if current.Changed(&prev.Input) {
		return Decision{Reason: ReasonInputsChanged}
	}
	if !prev.Output.UpToDate() {
		return Decision{Reason: ReasonOutputsChanged}
	}
	for _, check := range checks {
		if !check() {
			return Decision{Reason: ReasonCheckFailed}
		}
	}
	return Decision{UpToDate: true, Reason: ReasonUpToDate}
}
