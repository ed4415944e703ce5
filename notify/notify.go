package notify

import (
	"context"
	"time"
)

// =============================================================================
// Notification Types
// =============================================================================

// EventType represents the type of run lifecycle event.
type EventType string

// Event type constants.
const (
	EventRunStarted         EventType = "run_started"
	EventRunPaused          EventType = "run_paused"
	EventRunResumed         EventType = "run_resumed"
	EventRunCompleted       EventType = "run_completed"
	EventRunFailed          EventType = "run_failed"
	EventRunCancelled       EventType = "run_cancelled"
	EventHumanInputRequired EventType = "human_input_required"
	EventNodeFailed         EventType = "node_failed"
	EventContextWarning     EventType = "context_window_warning"
)

// Severity constants.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes a run lifecycle event.
type Event struct {
	Type        EventType      `json:"type"`
	ExecutionID string         `json:"execution_id"`
	Graph       string         `json:"graph"`
	NodeID      string         `json:"node_id,omitempty"`
	Message     string         `json:"message"`
	Severity    string         `json:"severity"` // SeverityInfo, SeverityWarning, SeverityError
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SeverityFor returns the default severity of an event type.
func SeverityFor(t EventType) string {
	switch t {
	case EventRunFailed, EventNodeFailed:
		return SeverityError
	case EventRunCancelled, EventContextWarning, EventHumanInputRequired:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier sends notifications about run events.
type Notifier interface {
	// Notify sends a notification. The executor logs returned errors and
	// never fails a run because a notification could not be delivered.
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
