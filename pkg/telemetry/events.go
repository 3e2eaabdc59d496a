package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a build lifecycle notification.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id,omitempty"`
	TaskID    string                 `json:"task_id,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventRunStarted    = "run.started"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
	EventTaskStarted   = "task.started"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
	EventTaskSkipped   = "task.skipped"
)

const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherClosed is returned by Publish after Shutdown.
var ErrPublisherClosed = errors.New("event publisher stopped")

// EventSubscriber handles one event.
type EventSubscriber func(event Event)

// EventFilter decides whether a subscriber sees an event.
type EventFilter func(event Event) bool

type subscription struct {
	fn     EventSubscriber
	filter EventFilter
}

// EventPublisher fans events out to subscribers. In synchronous mode delivery
// happens on the publishing goroutine, in subscription order. In async mode a
// single background goroutine delivers in publish order.
type EventPublisher struct {
	config EventsConfig

	mu     sync.RWMutex
	subs   []subscription
	closed bool

	buffer chan Event
	done   chan struct{}
}

// NewEventPublisher creates a publisher. A disabled publisher accepts and drops everything.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ep := &EventPublisher{config: cfg}
	if cfg.Enabled && cfg.Async {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.done = make(chan struct{})
		go ep.loop()
	}
	return ep
}

// Subscribe registers fn. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(fn EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subs = append(ep.subs, subscription{fn: fn, filter: filter})
}

// Publish stamps and delivers an event.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.closed {
		return ErrPublisherClosed
	}
	if ep.buffer == nil {
		ep.deliver(event)
		return nil
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropped %s", event.Type)
	}
}

func (ep *EventPublisher) loop() {
	defer close(ep.done)
	for event := range ep.buffer {
		ep.mu.RLock()
		ep.deliver(event)
		ep.mu.RUnlock()
	}
}

// deliver must be called with mu held for reading.
func (ep *EventPublisher) deliver(event Event) {
	for _, s := range ep.subs {
		if s.filter != nil && !s.filter(event) {
			continue
		}
		s.fn(event)
	}
}

// Shutdown stops accepting events and waits for queued ones to drain.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil {
		return nil
	}
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	if ep.buffer != nil {
		close(ep.buffer)
	}
	ep.mu.Unlock()

	if ep.done == nil {
		return nil
	}
	select {
	case <-ep.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

func (ep *EventPublisher) PublishRunStarted(runID string, requested []string) error {
	return ep.Publish(Event{
		Type:    EventRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("run %s started", runID),
		Data:    map[string]interface{}{"requested": requested},
	})
}

// PublishRunFinished emits run.completed, or run.failed when status is not "succeeded".
func (ep *EventPublisher) PublishRunFinished(runID, status string, duration time.Duration) error {
	ev := Event{
		Type:    EventRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("run %s %s", runID, status),
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	}
	if status != "succeeded" {
		ev.Type = EventRunFailed
		ev.Level = EventLevelError
	}
	return ep.Publish(ev)
}

func (ep *EventPublisher) PublishTaskStarted(runID, taskID string) error {
	return ep.Publish(Event{
		Type:    EventTaskStarted,
		RunID:   runID,
		TaskID:  taskID,
		Message: fmt.Sprintf("task %s started", taskID),
	})
}

// PublishTaskFinished picks the event type from the outcome: FAILED maps to
// task.failed, SKIPPED to task.skipped, everything else to task.completed.
func (ep *EventPublisher) PublishTaskFinished(runID, taskID, outcome, reason string, duration time.Duration) error {
	ev := Event{
		Type:    EventTaskCompleted,
		RunID:   runID,
		TaskID:  taskID,
		Message: fmt.Sprintf("task %s %s", taskID, outcome),
		Data: map[string]interface{}{
			"outcome":  outcome,
			"duration": duration.Seconds(),
		},
	}
	if reason != "" {
		ev.Data["reason"] = reason
	}
	switch outcome {
	case "FAILED":
		ev.Type = EventTaskFailed
		ev.Level = EventLevelError
	case "SKIPPED":
		ev.Type = EventTaskSkipped
		ev.Level = EventLevelWarning
	}
	return ep.Publish(ev)
}

// FilterByType only passes the listed event types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool { return set[event.Type] }
}

// FilterByRunID only passes events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool { return event.RunID == runID }
}
