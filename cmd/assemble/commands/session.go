package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/assemble/assemble/pkg/config"
	"github.com/assemble/assemble/pkg/console"
	"github.com/assemble/assemble/pkg/policy"
	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/stores"
	"github.com/assemble/assemble/pkg/telemetry"
	"github.com/assemble/assemble/pkg/work"
	"github.com/assemble/assemble/pkg/workspace"
)

const shutdownTimeout = 5 * time.Second

type sessionOptions struct {
	// lock holds the workspace lock until Close.
	lock bool
	// stores opens the run database and the history store.
	stores      bool
	metricsAddr string
	// out receives build output. Defaults to os.Stdout.
	out io.Writer
}

// session is everything a command needs from one workspace: settings,
// telemetry, the build file loader and, for building commands, the stores.
type session struct {
	ws       *workspace.Workspace
	settings *config.Settings
	tel      *telemetry.Telemetry
	log      *telemetry.Logger
	loader   *config.Loader
	out      io.Writer

	// store keeps task histories; runs records runs and events.
	store   work.Store
	files   *work.FileStore
	runs    *stores.SQLiteStore
	closers []func() error
}

func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	ws, err := workspace.Open(projectDir)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettingsFromDir(ws.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if logLevel != "" {
		settings.Telemetry.Logging.Level = logLevel
	}
	if opts.metricsAddr != "" {
		settings.Telemetry.Metrics.Enabled = true
		settings.Telemetry.Metrics.ListenAddress = opts.metricsAddr
	}

	tel, err := telemetry.New(&settings.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	s := &session{
		ws:       ws,
		settings: settings,
		tel:      tel,
		log:      tel.Logger.NewComponentLogger("cli"),
		out:      opts.out,
	}
	if s.out == nil {
		s.out = os.Stdout
	}

	if opts.lock {
		release, err := ws.Lock()
		if err != nil {
			s.Close()
			if errors.Is(err, workspace.ErrLocked) {
				return nil, fmt.Errorf("%s: %w", ws.Root(), err)
			}
			return nil, fmt.Errorf("failed to lock workspace: %w", err)
		}
		s.closers = append(s.closers, release)
	}

	if s.loader, err = config.NewLoader(); err != nil {
		s.Close()
		return nil, err
	}

	if opts.stores {
		if err := s.openStores(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) openStores(ctx context.Context) error {
	runs, err := stores.Open(ctx, s.ws.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open run database: %w", err)
	}
	s.runs = runs
	s.closers = append(s.closers, runs.Close)
	s.tel.Events.Subscribe(runs.EventSubscriber(ctx, func(err error) {
		s.log.WithError(err).Warn("Failed to persist event")
	}), nil)

	switch s.settings.Cache.Backend {
	case config.CacheBackendSQLite:
		path := s.resolve(s.settings.Cache.Path, s.ws.DatabasePath())
		if path == s.ws.DatabasePath() {
			s.store = runs
			return nil
		}
		history, err := stores.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		s.closers = append(s.closers, history.Close)
		s.store = history
	default:
		s.files = work.NewFileStore(s.resolve(s.settings.Cache.Path, s.ws.CachePath()))
		s.store = s.files
	}
	return nil
}

// resolve makes path absolute against the workspace root, or returns def
// when path is empty.
func (s *session) resolve(path, def string) string {
	if path == "" {
		return def
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.ws.Root(), path)
}

// buildFilePath picks --build-file, then the settings, then discovery.
func (s *session) buildFilePath() (string, error) {
	if buildFile != "" {
		return s.resolve(buildFile, ""), nil
	}
	if s.settings.BuildFile != "" {
		return s.resolve(s.settings.BuildFile, ""), nil
	}
	if path := config.FindBuildFile(s.ws.Root()); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no build file in %s (looked for %v)", s.ws.Root(), config.BuildFileNames)
}

// load parses the build file and configures a fresh arena.
func (s *session) load(ctx context.Context) (*config.BuildDefinition, *project.Arena, error) {
	path, err := s.buildFilePath()
	if err != nil {
		return nil, nil, err
	}
	s.log.WithField("build_file", path).Debug("Loading build definition")

	def, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	arena, err := config.NewArena(s.ws.Root(), def)
	if err != nil {
		return nil, nil, err
	}
	return def, arena, nil
}

// lint evaluates the built-in and configured policies against def.
func (s *session) lint(ctx context.Context, def *config.BuildDefinition, arena *project.Arena) (*policy.Result, error) {
	engine, err := policy.NewEngine(*s.tel.Logger.NewComponentLogger("policy").Zerolog())
	if err != nil {
		return nil, err
	}
	if len(s.settings.Policy.Paths) > 0 {
		paths := make([]string, len(s.settings.Policy.Paths))
		for i, p := range s.settings.Policy.Paths {
			paths[i] = s.resolve(p, "")
		}
		if err := engine.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return engine.Evaluate(ctx, policy.NewInput(def, arena.AllTaskIDs()))
}

// checkPolicies runs lint before a build and reports what it finds.
// Informational findings are only shown in verbose mode.
func (s *session) checkPolicies(ctx context.Context, def *config.BuildDefinition, arena *project.Arena, rep *console.Reporter) error {
	if !s.settings.Policy.Enabled {
		return nil
	}
	res, err := s.lint(ctx, def, arena)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	var shown []policy.Violation
	for _, v := range res.Violations {
		if v.Severity != policy.SeverityInfo || verbose {
			shown = append(shown, v)
		}
	}
	rep.Violations(shown)
	return res.Err(s.settings.Policy.FailOnWarning)
}

func (s *session) reporter() *console.Reporter {
	return console.NewReporter(s.out, console.WithVerbose(verbose), console.WithQuiet(quiet))
}

// Close flushes telemetry first so buffered events reach the database, then
// releases stores and the lock.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.tel.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("Telemetry shutdown failed")
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.WithError(err).Warn("Cleanup failed")
		}
	}
	s.closers = nil
}
