package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/assemble/assemble/pkg/telemetry"
)

// DefaultDebounce coalesces bursts of writes into one rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration

	// Ignore holds glob patterns matched against each path relative to the
	// root and against its base name. Hidden entries are always ignored.
	Ignore []string

	Logger *telemetry.Logger
}

// Watcher reports changes under a directory tree as debounced batches.
type Watcher struct {
	root    string
	opts    Options
	watcher *fsnotify.Watcher
	log     *telemetry.Logger

	changes chan []string
	errors  chan error
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	closed  bool
}

// New starts watching root and every directory below it.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NopLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		root:    abs,
		opts:    opts,
		watcher: fw,
		log:     opts.Logger.NewComponentLogger("watch"),
		changes: make(chan []string, 1),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		pending: make(map[string]bool),
	}
	if err := w.addRecursive(abs); err != nil {
		_ = fw.Close()
		return nil, err
	}
	go w.processEvents()
	return w, nil
}

// Changes delivers sorted batches of changed paths.
func (w *Watcher) Changes() <-chan []string { return w.changes }

// Errors delivers watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && !os.IsPermission(err) {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	base := filepath.Base(path)
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	for _, pattern := range w.opts.Ignore {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/")+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.WithError(err).Warn("Failed to watch new directory")
			}
		}
	}
	w.log.Zerolog().Trace().Str("path", event.Name).Str("op", event.Op.String()).Msg("File changed")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[event.Name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(batch)
	select {
	case w.changes <- batch:
	case <-w.done:
	}
}

// Loop calls build once, then again after every batch of changes, until ctx
// is done. Build errors are passed to onError and do not stop the loop.
func Loop(ctx context.Context, w *Watcher, build func(ctx context.Context, changed []string) error, onError func(error)) error {
	if onError == nil {
		onError = func(error) {}
	}
	if err := build(ctx, nil); err != nil {
		onError(err)
	}
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case changed := <-w.Changes():
			if err := build(ctx, changed); err != nil {
				onError(err)
			}
		case err := <-w.Errors():
			onError(err)
		}
	}
}
