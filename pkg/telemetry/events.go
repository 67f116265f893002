package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a run lifecycle notification.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// TaskName is the associated fully qualified task name, if applicable.
	TaskName string `json:"task_name,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for the events a run publishes.
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunCompleted   = "run.completed"
	EventTypeRunFailed      = "run.failed"
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeConfigReloaded = "config.reloaded"
	EventTypeRulesReloaded  = "rules.reloaded"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers synchronously, in publish
// order. Subscribers must not block.
type EventPublisher struct {
	config      EventsConfig
	subscribers []subscriberEntry
	filters     []EventFilter
	mu          sync.RWMutex
	now         func() time.Time
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	return &EventPublisher{
		config: cfg,
		now:    time.Now,
	}
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) {
	if ep == nil || !ep.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = ep.now()
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, filter := range ep.filters {
		if !filter(event) {
			return
		}
	}

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, cwd string) {
	ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Source:  "session",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started in %s", runID, cwd),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"cwd": cwd,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) {
	level := EventLevelInfo
	if status != "succeeded" {
		level = EventLevelWarning
	}
	ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "session",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   level,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, reason string) {
	ep.Publish(Event{
		Type:    EventTypeRunFailed,
		Source:  "session",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishTaskStarted publishes a task started event.
func (ep *EventPublisher) PublishTaskStarted(runID, taskName string) {
	ep.Publish(Event{
		Type:     EventTypeTaskStarted,
		Source:   "runner",
		RunID:    runID,
		TaskName: taskName,
		Message:  fmt.Sprintf("Task %s started", taskName),
		Level:    EventLevelInfo,
	})
}

// PublishTaskCompleted publishes a task completed event.
func (ep *EventPublisher) PublishTaskCompleted(runID, taskName string, duration time.Duration) {
	ep.Publish(Event{
		Type:     EventTypeTaskCompleted,
		Source:   "runner",
		RunID:    runID,
		TaskName: taskName,
		Message:  fmt.Sprintf("Task %s completed", taskName),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishTaskFailed publishes a task failed event.
func (ep *EventPublisher) PublishTaskFailed(runID, taskName, reason string) {
	ep.Publish(Event{
		Type:     EventTypeTaskFailed,
		Source:   "runner",
		RunID:    runID,
		TaskName: taskName,
		Message:  fmt.Sprintf("Task %s failed: %s", taskName, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishConfigReloaded publishes a config reload event from watch mode.
func (ep *EventPublisher) PublishConfigReloaded(path string) {
	ep.Publish(Event{
		Type:    EventTypeConfigReloaded,
		Source:  "config-watch",
		Message: fmt.Sprintf("Config %s reloaded", path),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// PublishRulesReloaded publishes an action rule reload event from watch mode.
func (ep *EventPublisher) PublishRulesReloaded(count int) {
	ep.Publish(Event{
		Type:    EventTypeRulesReloaded,
		Source:  "rules-watch",
		Message: fmt.Sprintf("%d action rules reloaded", count),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"count": count,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByTask creates a filter that only allows events for a specific task.
func FilterByTask(taskName string) EventFilter {
	return func(event Event) bool {
		return event.TaskName == taskName
	}
}
