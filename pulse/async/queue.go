package async

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prisonops/lifecycle/errors"
)

const (
	// claimBatchSize is how many queued ids Dequeue considers per attempt.
	// Losing a claim race moves on to the next id instead of re-querying.
	claimBatchSize = 8
)

// Queue is the message transport between the dispatcher and the workers.
type Queue struct {
	store *Store
	now   func() time.Time
}

// NewQueue creates a new message queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store: NewStore(db),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying message store
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a new message to the queue
func (q *Queue) Enqueue(ctx context.Context, m *Message) error {
	if err := q.store.CreateMessage(ctx, m); err != nil {
		err = errors.Wrap(err, "failed to enqueue message")
		err = errors.WithDetail(err, fmt.Sprintf("Message ID: %s", m.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", m.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Prison: %s", m.PrisonCode))
		return err
	}

	return nil
}

// Send enqueues a payload for a handler addressed to a prison.
func (q *Queue) Send(ctx context.Context, handlerName, prisonCode string, payload []byte) (*Message, error) {
	m, err := NewMessage(handlerName, prisonCode, payload)
	if err != nil {
		return nil, err
	}
	if err := q.Enqueue(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Dequeue claims the oldest queued message and marks it as running.
// Returns nil when nothing is queued. Safe across processes sharing the database.
func (q *Queue) Dequeue(ctx context.Context) (*Message, error) {
	ids, err := q.store.OldestQueuedIDs(ctx, claimBatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued messages")
	}

	for _, id := range ids {
		claimed, err := q.store.ClaimMessage(ctx, id, q.now())
		if err != nil {
			err = errors.Wrap(err, "failed to mark message as running")
			return nil, errors.WithDetail(err, fmt.Sprintf("Message ID: %s", id))
		}
		if !claimed {
			continue
		}

		m, err := q.store.GetMessage(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load claimed message %s", id)
		}
		return m, nil
	}

	return nil, nil
}

// GetMessage retrieves a message by ID
func (q *Queue) GetMessage(ctx context.Context, id string) (*Message, error) {
	return q.store.GetMessage(ctx, id)
}

// UpdateMessage persists a message's state
func (q *Queue) UpdateMessage(ctx context.Context, m *Message) error {
	if err := q.store.UpdateMessage(ctx, m); err != nil {
		err = errors.Wrap(err, "failed to update message")
		err = errors.WithDetail(err, fmt.Sprintf("Message ID: %s", m.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", m.Status))
		return err
	}

	return nil
}

// CompleteMessage marks a message as completed
func (q *Queue) CompleteMessage(ctx context.Context, m *Message) error {
	m.Complete()
	return q.UpdateMessage(ctx, m)
}

// FailMessage marks a message as failed with an error
func (q *Queue) FailMessage(ctx context.Context, m *Message, cause error) error {
	m.Fail(cause)
	if err := q.UpdateMessage(ctx, m); err != nil {
		return errors.WithDetail(err, fmt.Sprintf("Message error: %s", cause.Error()))
	}
	return nil
}

// ListMessages returns messages, optionally filtered by status
func (q *Queue) ListMessages(ctx context.Context, status *MessageStatus, limit int) ([]*Message, error) {
	return q.store.ListMessages(ctx, status, limit)
}

// Cleanup removes old completed/failed messages
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	return q.store.CleanupOldMessages(ctx, olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued" yaml:"queued"`
	Running   int `json:"running" yaml:"running"`
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`
	Total     int `json:"total" yaml:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		Queued:    counts[MessageStatusQueued],
		Running:   counts[MessageStatusRunning],
		Completed: counts[MessageStatusCompleted],
		Failed:    counts[MessageStatusFailed],
	}
	stats.Total = stats.Queued + stats.Running + stats.Completed + stats.Failed
	return stats, nil
}
