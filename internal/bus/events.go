// Package bus distributes assistant events (routes, fallbacks, mode changes,
// retrains, connectivity observations) to in-process subscribers such as the
// metrics collector and to websocket observers.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of event flowing through the bus.
type EventType string

const (
	// Routing
	EventRouteCompleted EventType = "route_completed"
	EventFallback       EventType = "fallback"

	// Mode state machine
	EventModeChanged    EventType = "mode_changed"
	EventToggleRejected EventType = "toggle_rejected"

	// Model lifecycle
	EventRetrainCompleted EventType = "retrain_completed"
	EventRetrainSkipped   EventType = "retrain_skipped"

	// Background observation
	EventConnectivityObserved EventType = "connectivity_observed"

	// Conversation log
	EventHistoryCleared EventType = "history_cleared"
)

// AllEventTypes lists every event type, in the order shown to observers.
var AllEventTypes = []EventType{
	EventRouteCompleted,
	EventFallback,
	EventModeChanged,
	EventToggleRejected,
	EventRetrainCompleted,
	EventRetrainSkipped,
	EventConnectivityObserved,
	EventHistoryCleared,
}

// Event is a single occurrence published on the bus. Only the fields that
// matter for a given type are set.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Routing context
	Mode       string  `json:"mode,omitempty"`
	IntentID   string  `json:"intent,omitempty"`
	Tier       string  `json:"tier,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	// Outcome / reason (fallback reason, toggle outcome, retrain result)
	Outcome string `json:"outcome,omitempty"`

	// Free-form content
	Content string `json:"content,omitempty"`
	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`

	// Available carries connectivity observations and mode-change targets.
	Available bool `json:"available,omitempty"`
}

// NewEvent creates an event with a fresh id and the current UTC time.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// RouteCompleted builds a route_completed event.
func RouteCompleted(mode, intentID, tier string, confidence float64, d time.Duration) Event {
	e := NewEvent(EventRouteCompleted)
	e.Mode = mode
	e.IntentID = intentID
	e.Tier = tier
	e.Confidence = confidence
	e.DurationMs = d.Milliseconds()
	return e
}

// Fallback builds a fallback event; reason is one of the router's fallback
// reasons (probe, timeout, error, empty).
func Fallback(reason string, err error) Event {
	e := NewEvent(EventFallback)
	e.Outcome = reason
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// ModeChanged builds a mode_changed event.
func ModeChanged(from, to, cause string) Event {
	e := NewEvent(EventModeChanged)
	e.Mode = to
	e.Details = "from=" + from
	e.Outcome = cause
	e.Available = to == "online"
	return e
}

// ToggleRejected builds a toggle_rejected event.
func ToggleRejected(stage string) Event {
	e := NewEvent(EventToggleRejected)
	e.Outcome = "cannot_switch"
	e.Details = stage
	return e
}

// ConnectivityObserved builds a connectivity_observed event.
func ConnectivityObserved(available bool, stage string, d time.Duration) Event {
	e := NewEvent(EventConnectivityObserved)
	e.Available = available
	e.Details = stage
	e.DurationMs = d.Milliseconds()
	return e
}
