package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"debug", func(c *Config) { *c = *DebugConfig() }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"async without buffer", func(c *Config) { c.Events.Async = true; c.Events.BufferSize = 0 }, true},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "debug").NewComponentLogger("executor").WithRunID("r1").WithTaskID(":app:compile")
	log.Debug("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected a json line, got %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"component": "executor",
		"run_id":    "r1",
		"task":      ":app:compile",
		"message":   "hello",
		"level":     "debug",
	} {
		if line[key] != want {
			t.Errorf("Expected %s=%q, got %v", key, want, line[key])
		}
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
	log.Warn("kept")
	if buf.Len() == 0 {
		t.Error("Expected warn line to be written")
	}
}

func TestLoggerContext(t *testing.T) {
	log := NopLogger().WithTaskID(":x")
	ctx := log.WithContext(context.Background())
	if FromContext(ctx) != log {
		t.Error("Expected FromContext to return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("Expected a fallback logger")
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.Enabled() {
		t.Error("Expected disabled metrics")
	}
	m.RecordTask("EXECUTED", time.Second)
	m.RecordRun("succeeded", time.Second)
	m.TaskStarted()
	m.SetQueued(3)
	if err := m.Serve(context.Background(), ":0"); err != nil {
		t.Errorf("Expected Serve on disabled metrics to return nil, got %v", err)
	}
}

func TestMetricsRecord(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordTask("EXECUTED", 10*time.Millisecond)
	m.RecordTask("EXECUTED", 20*time.Millisecond)
	m.RecordTask("UP-TO-DATE", 0)
	m.RecordRun("failed", time.Second)
	m.RecordError("task", "ACTION_FAILED")
	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished()
	m.SetQueued(4)

	if got := testutil.ToFloat64(m.tasksTotal.WithLabelValues("EXECUTED")); got != 2 {
		t.Errorf("Expected 2 executed tasks, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksTotal.WithLabelValues("UP-TO-DATE")); got != 1 {
		t.Errorf("Expected 1 up-to-date task, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues("task", "ACTION_FAILED")); got != 1 {
		t.Errorf("Expected 1 ACTION_FAILED error, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksRunning); got != 1 {
		t.Errorf("Expected 1 running task, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksQueued); got != 4 {
		t.Errorf("Expected queue depth 4, got %v", got)
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, nil)
	var failed []Event
	ep.Subscribe(func(e Event) { failed = append(failed, e) }, FilterByType(EventTaskFailed))

	_ = ep.PublishRunStarted("r1", []string{":build"})
	_ = ep.PublishTaskStarted("r1", ":a")
	_ = ep.PublishTaskFinished("r1", ":a", "FAILED", "", time.Millisecond)
	_ = ep.PublishTaskFinished("r1", ":b", "SKIPPED", "upstream failure: :a", 0)
	_ = ep.PublishRunFinished("r1", "failed", time.Second)

	wantTypes := []string{EventRunStarted, EventTaskStarted, EventTaskFailed, EventTaskSkipped, EventRunFailed}
	if len(got) != len(wantTypes) {
		t.Fatalf("Expected %d events, got %d", len(wantTypes), len(got))
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("Expected event %d to be %s, got %s", i, want, got[i].Type)
		}
		if got[i].ID == "" || got[i].Timestamp.IsZero() {
			t.Errorf("Expected event %d to be stamped", i)
		}
	}
	if len(failed) != 1 || failed[0].TaskID != ":a" {
		t.Errorf("Expected the filtered subscriber to see only :a failing, got %v", failed)
	}
	if got[3].Data["reason"] != "upstream failure: :a" {
		t.Errorf("Expected skip reason in data, got %v", got[3].Data)
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, Async: true, BufferSize: 16})

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, FilterByRunID("r1"))

	for i := 0; i < 5; i++ {
		if err := ep.PublishTaskStarted("r1", ":t"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	_ = ep.PublishTaskStarted("other", ":t")

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("Expected 5 delivered events, got %d", count)
	}
	if err := ep.PublishTaskStarted("r1", ":t"); err != ErrPublisherClosed {
		t.Errorf("Expected ErrPublisherClosed after shutdown, got %v", err)
	}
}

func TestDisabledPublisherDropsEvents(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.PublishTaskStarted("r", ":t"); err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if called {
		t.Error("Expected disabled publisher to drop the event")
	}
}

func TestNopTelemetry(t *testing.T) {
	tel := Nop()
	ctx, span := tel.Tracer.StartRunSpan(context.Background(), "r1", []string{":build"})
	_, child := tel.Tracer.StartTaskSpan(ctx, ":a")
	EndSpan(child, nil)
	EndSpan(span, nil)
	if TraceID(ctx) != "" {
		t.Errorf("Expected no trace id from a noop tracer, got %q", TraceID(ctx))
	}
	if FromTelemetryContext(tel.WithContext(context.Background())) != tel {
		t.Error("Expected telemetry round trip through context")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
