// Package events publishes session lifecycle events.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	TypeStarted           Type = "started"
	TypeAwaitingSelection Type = "awaiting_selection"
	TypeCompleted         Type = "completed"
	TypeFailed            Type = "failed"
)

// Event is one session transition.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	InputType string    `json:"input_type,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends events to a bus. Publish failures are reported to the
// caller, which decides whether they matter.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
