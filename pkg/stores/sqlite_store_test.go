package stores

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/executor"
	"github.com/assemble/assemble/pkg/graph"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/lazy"
	"github.com/assemble/assemble/pkg/project"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/telemetry"
	"github.com/assemble/assemble/pkg/work"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	for _, table := range []string{"runs", "task_results", "task_history", "events"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("Expected repeated migration to succeed, got: %v", err)
	}
}

func TestStore_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	id := identifier.MustTask(":app:compile")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Save(ctx, &work.History{Input: work.NewInput(id, []string{"a"})}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	h, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if h == nil || len(h.Input.Data) != 1 || h.Input.Data[0] != "a" {
		t.Errorf("Expected history with data [a], got %+v", h)
	}
}

func TestHistory_LoadSaveRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := identifier.MustTask(":app:compile")

	loaded, err := store.Load(ctx, id)
	if err != nil || loaded != nil {
		t.Fatalf("Expected (nil, nil) for missing history, got (%v, %v)", loaded, err)
	}

	out, err := work.NewOutput(nil, map[string]string{"version": "1.0"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	first := &work.History{Input: work.NewInput(id, []string{"x"}), Output: out}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	second := &work.History{Input: work.NewInput(id, []string{"y"}), Output: out}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Expected upsert to succeed, got: %v", err)
	}

	loaded, err = store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if loaded.Input.Changed(&second.Input) {
		t.Error("Expected loaded input to equal the latest saved input")
	}
	if loaded.Output.Data["version"] != "1.0" {
		t.Errorf("Expected output data to survive, got %v", loaded.Output.Data)
	}

	entries, err := store.ListHistory(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != id.String() {
		t.Errorf("Expected one entry for %s, got %+v", id, entries)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := store.Remove(ctx, id); err != nil {
		t.Errorf("Expected removing a missing history to succeed, got: %v", err)
	}
	if loaded, _ := store.Load(ctx, id); loaded != nil {
		t.Errorf("Expected history to be gone, got %+v", loaded)
	}
}

func TestHistory_LoadRejectsOtherTask(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := identifier.MustTask(":app:a")
	b := identifier.MustTask(":app:b")

	if err := store.Save(ctx, &work.History{Input: work.NewInput(b, []string{"x"})}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `UPDATE task_history SET task_id = ? WHERE task_id = ?`, a.String(), b.String()); err != nil {
		t.Fatalf("failed to rewrite history row: %v", err)
	}

	if loaded, err := store.Load(ctx, a); err == nil {
		t.Fatalf("Expected error for a record naming %s, got %+v", b, loaded)
	}
}

func TestHistory_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{":a:one", ":a:two"} {
		h := &work.History{Input: work.NewInput(identifier.MustTask(name), []string{"x"})}
		if err := store.Save(ctx, h); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}

	n, err := store.ClearHistory(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 histories removed, got %d", n)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Second)

	if err := store.RecordRunStart(ctx, "run-1", []string{":app:build"}, started); err != nil {
		t.Fatalf("failed to record run start: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != engine.RunStatusRunning {
		t.Errorf("Expected status running, got %s", run.Status)
	}
	if run.FinishedAt != nil {
		t.Errorf("Expected no finish time, got %v", run.FinishedAt)
	}

	compile := &engine.TaskResult{
		ID:      identifier.MustTask(":app:compile"),
		Outcome: engine.OutcomeFailed,
		Err:     errors.New("boom"),
		Start:   started,
		End:     started.Add(250 * time.Millisecond),
		Stderr:  "stack trace",
	}
	build := &engine.TaskResult{
		ID:      identifier.MustTask(":app:build"),
		Outcome: engine.OutcomeSkipped,
		Reason:  executor.UpstreamFailure(compile.ID),
	}
	for _, r := range []*engine.TaskResult{build, compile} {
		if err := store.RecordTaskResult(ctx, "run-1", r); err != nil {
			t.Fatalf("failed to record result: %v", err)
		}
	}

	summary := engine.Summarize([]*engine.TaskResult{compile, build}, false, 2*time.Second)
	if err := store.RecordRunEnd(ctx, "run-1", summary); err != nil {
		t.Fatalf("failed to record run end: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != engine.RunStatusFailed {
		t.Errorf("Expected status failed, got %s", run.Status)
	}
	if run.Total != 2 || run.Failed != 1 {
		t.Errorf("Expected total 2 failed 1, got total %d failed %d", run.Total, run.Failed)
	}
	if run.Duration != 2*time.Second {
		t.Errorf("Expected duration 2s, got %v", run.Duration)
	}
	if run.FinishedAt == nil {
		t.Error("Expected finish time to be set")
	}
	if len(run.Requested) != 1 || run.Requested[0] != ":app:build" {
		t.Errorf("Expected requested [:app:build], got %v", run.Requested)
	}

	records, err := store.ListTaskResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].TaskID != ":app:compile" {
		t.Errorf("Expected started task first, got %s", records[0].TaskID)
	}
	if records[0].Error != "boom" || records[0].Stderr != "stack trace" {
		t.Errorf("Expected error and stderr to be stored, got %+v", records[0])
	}
	if d := records[0].Duration(); d != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", d)
	}
	if records[1].Start != nil || records[1].Reason != executor.UpstreamFailure(compile.ID) {
		t.Errorf("Expected skipped record without start, got %+v", records[1])
	}
}

func TestRunEnd_UnknownRun(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordRunEnd(context.Background(), "missing", engine.RunSummary{Status: engine.RunStatusSucceeded})
	if err == nil {
		t.Fatal("Expected error for unknown run")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		if err := store.RecordRunStart(ctx, id, nil, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("Expected [new mid], got %v", runIDs(runs))
	}

	latest, err := store.LatestRun(ctx)
	if err != nil || latest == nil || latest.ID != "new" {
		t.Errorf("Expected latest run new, got %v (%v)", latest, err)
	}

	if err := store.DeleteRun(ctx, "old"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, "old"); err == nil {
		t.Error("Expected deleted run to be gone")
	}
	if err := store.DeleteRun(ctx, "old"); err == nil {
		t.Error("Expected error deleting a missing run")
	}
}

func TestLatestRun_Empty(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.LatestRun(context.Background())
	if err != nil || run != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", run, err)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestEvents_SubscriberPersists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	var writeErrs []error
	publisher.Subscribe(store.EventSubscriber(ctx, func(err error) {
		writeErrs = append(writeErrs, err)
	}), nil)

	if err := publisher.PublishRunStarted("run-1", []string{":build"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := publisher.PublishTaskFinished("run-1", ":compile", "FAILED", "", time.Second); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := publisher.PublishRunStarted("run-2", nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(writeErrs) > 0 {
		t.Fatalf("Expected no write errors, got %v", writeErrs)
	}

	events, err := store.ListEvents(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for run-1, got %d", len(events))
	}
	if events[0].Type != telemetry.EventRunStarted || events[1].Type != telemetry.EventTaskFailed {
		t.Errorf("Expected [run.started task.failed], got [%s %s]", events[0].Type, events[1].Type)
	}
	if events[1].Level != telemetry.EventLevelError || events[1].Data["outcome"] != "FAILED" {
		t.Errorf("Expected error level with outcome data, got %+v", events[1])
	}

	all, err := store.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 events in total, got %d", len(all))
	}
}

// TestExecutor_UsesStore runs a real build twice against one database.
func TestExecutor_UsesStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	runs := 0
	build := func() (*graph.ExecutionGraph, identifier.TaskID) {
		arena, err := project.NewArena(dir, project.WithPlugins())
		if err != nil {
			t.Fatal(err)
		}
		action := task.ActionFunc(func(context.Context, *task.Executable, task.Project) error {
			runs++
			return os.WriteFile(filepath.Join(dir, "out.txt"), []byte("hi"), 0o644)
		})
		h, err := arena.Root().Tasks().RegisterWith("write", task.FromTask(action),
			func(e *task.Executable, _ task.Project) error {
				task.Input[string](e, "message", lazy.Just("hi"))
				e.OutputFiles(task.NewFileCollection("out.txt"))
				return nil
			})
		if err != nil {
			t.Fatalf("Failed to register task: %v", err)
		}
		g, err := graph.Build(ctx, arena, []identifier.TaskID{h.ID()})
		if err != nil {
			t.Fatalf("Failed to build graph: %v", err)
		}
		return g, h.ID()
	}

	opts := executor.Options{Workers: 1, Store: store, Recorder: store}
	var (
		reports []*executor.Report
		id      identifier.TaskID
	)
	for i := 0; i < 2; i++ {
		var g *graph.ExecutionGraph
		g, id = build()
		report, err := executor.New(opts).Run(ctx, g)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		reports = append(reports, report)
	}

	if runs != 1 {
		t.Errorf("Expected the action to run once, got %d", runs)
	}

	res, ok := reports[1].Result(id)
	if !ok || res.Outcome != engine.OutcomeUpToDate {
		t.Errorf("Expected second run to be UP-TO-DATE, got %+v", res)
	}

	stored, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 recorded runs, got %d", len(stored))
	}
	for _, run := range stored {
		if run.Status != engine.RunStatusSucceeded {
			t.Errorf("Expected run %s to succeed, got %s", run.ID, run.Status)
		}
	}

	records, err := store.ListTaskResults(ctx, reports[1].RunID)
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != engine.OutcomeUpToDate {
		t.Errorf("Expected one UP-TO-DATE record, got %+v", records)
	}
}
