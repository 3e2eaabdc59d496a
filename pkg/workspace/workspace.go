// Package workspace describes the on-disk layout of a build and guards it
// against concurrent builds in the same directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Layout names.
const (
	StateDir     = ".assemble"
	CacheDir     = "task-cache"
	DatabaseFile = "assemble.db"
	LockFile     = "lock"
)

// ErrLocked is returned when another build holds the workspace lock.
var ErrLocked = errors.New("workspace is locked by another build")

// Workspace is the root directory of a build.
type Workspace struct {
	root string
}

// Open resolves root to an absolute path and ensures the state directory exists.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %s: %w", root, err)
	}
	ws := &Workspace{root: abs}
	if err := os.MkdirAll(ws.StatePath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return ws, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// StatePath returns the .assemble directory.
func (w *Workspace) StatePath() string { return filepath.Join(w.root, StateDir) }

// CachePath returns the directory holding per-task history files.
func (w *Workspace) CachePath() string { return filepath.Join(w.StatePath(), CacheDir) }

// DatabasePath returns the SQLite database location.
func (w *Workspace) DatabasePath() string { return filepath.Join(w.StatePath(), DatabaseFile) }

// Lock acquires the workspace lock without blocking. The returned function
// releases it.
func (w *Workspace) Lock() (func() error, error) {
	lock := NewFileLock(filepath.Join(w.StatePath(), LockFile))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLocked
	}
	return lock.Unlock, nil
}

// FileLock wraps a flock file lock.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a lock backed by the file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{flock: flock.New(path), path: path}
}

// Lock blocks until the lock is acquired.
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// AtomicWrite writes data through a temp file in the target directory and a
// rename, so readers never observe a partial file.
func AtomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
