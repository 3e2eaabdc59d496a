package work

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/assemble/assemble/pkg/identifier"
)

// Input is the serialized form of everything a task declared as input.
type Input struct {
	TaskID    identifier.TaskID `json:"task_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      []string          `json:"data"`
}

// NewInput snapshots data for a task at the current time.
func NewInput(id identifier.TaskID, data []string) Input {
	return Input{TaskID: id, Timestamp: time.Now(), Data: data}
}

// Changed reports whether the input differs from a previous snapshot. A
// missing snapshot counts as changed. Comparing inputs of different tasks is
// a programming error and panics.
func (in Input) Changed(prev *Input) bool {
	if prev == nil {
		return true
	}
	if in.TaskID != prev.TaskID {
		panic(fmt.Sprintf("cannot compare inputs of %s and %s", in.TaskID, prev.TaskID))
	}
	return !slices.Equal(in.Data, prev.Data)
}

// AnyInputs reports whether the task declared any input.
func (in Input) AnyInputs() bool {
	return len(in.Data) > 0
}

// Fingerprint is the content hash of a single file.
type Fingerprint struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// InputBuilder accumulates serialized inputs in declaration order.
type InputBuilder struct {
	data []string
}

// AddProperty serializes a named value as JSON.
func (b *InputBuilder) AddProperty(name string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize input %q: %w", name, err)
	}
	b.data = append(b.data, "property:"+name+"="+string(encoded))
	return nil
}

// AddFiles fingerprints every file under the given paths. Missing paths are
// recorded as absent so that creating them later changes the input.
func (b *InputBuilder) AddFiles(paths ...string) error {
	for _, root := range paths {
		files, err := ExpandFiles(root)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			b.data = append(b.data, "file:"+root+"=<absent>")
			continue
		}
		for _, f := range files {
			fp, err := FingerprintFile(f)
			if err != nil {
				return err
			}
			b.data = append(b.data, "file:"+fp.Path+"="+fp.SHA256)
		}
	}
	return nil
}

// Build returns the snapshot.
func (b *InputBuilder) Build(id identifier.TaskID) Input {
	return NewInput(id, slices.Clone(b.data))
}

// FingerprintFile hashes a file's contents.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return Fingerprint{Path: path, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// ExpandFiles returns the regular files at or below root in lexical order.
// A missing root yields no files.
func ExpandFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}
