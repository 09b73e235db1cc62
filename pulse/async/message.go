// Package async carries per-prison job messages from the dispatcher to the workers.
//
// Messages live in the async_message table. A worker claims a queued message with a
// conditional update, so a message is executed by at most one worker at a time; a
// message left running by a crash is re-queued at start (at-least-once delivery).
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/prisonops/lifecycle/errors"
)

// MessageStatus represents the current state of a message
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusRunning   MessageStatus = "running"
	MessageStatusCompleted MessageStatus = "completed"
	MessageStatusFailed    MessageStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid MessageStatus
func IsValidStatus(s string) bool {
	switch MessageStatus(s) {
	case MessageStatusQueued, MessageStatusRunning, MessageStatusCompleted, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// Message is one unit of work for one prison.
// HandlerName routes it to a JobHandler; Payload is owned by that handler.
type Message struct {
	ID          string          `json:"id" yaml:"id"`
	HandlerName string          `json:"handler_name" yaml:"handler_name"`
	PrisonCode  string          `json:"prison_code,omitempty" yaml:"prison_code,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty" yaml:"-"`
	Status      MessageStatus   `json:"status" yaml:"status"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"updated_at"`
}

// NewMessage creates a queued message addressed to a prison.
func NewMessage(handlerName, prisonCode string, payload json.RawMessage) (*Message, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}

	now := time.Now().UTC()
	return &Message{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		PrisonCode:  prisonCode,
		Payload:     payload,
		Status:      MessageStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the message as running
func (m *Message) Start() {
	now := time.Now().UTC()
	m.Status = MessageStatusRunning
	m.StartedAt = &now
	m.UpdatedAt = now
}

// Complete marks the message as completed
func (m *Message) Complete() {
	now := time.Now().UTC()
	m.Status = MessageStatusCompleted
	m.CompletedAt = &now
	m.UpdatedAt = now
}

// Fail marks the message as failed with an error message
func (m *Message) Fail(err error) {
	now := time.Now().UTC()
	m.Status = MessageStatusFailed
	m.Error = err.Error()
	m.CompletedAt = &now
	m.UpdatedAt = now
}

// Requeue puts the message back in the queue, keeping its retry count.
func (m *Message) Requeue(reason string) {
	m.Status = MessageStatusQueued
	m.Error = reason
	m.StartedAt = nil
	m.UpdatedAt = time.Now().UTC()
}
