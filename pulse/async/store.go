package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// Store handles persistence of async messages
type Store struct {
	db *sql.DB
}

// NewStore creates a new async message store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateMessage inserts a new message
func (s *Store) CreateMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO async_message (
			id, handler_name, prison_code, payload, status, error,
			retry_count, created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(m.Payload), Valid: len(m.Payload) > 0}
	errMsg := sql.NullString{String: m.Error, Valid: m.Error != ""}

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.HandlerName,
		m.PrisonCode,
		payload,
		m.Status,
		errMsg,
		m.RetryCount,
		m.CreatedAt,
		m.StartedAt,
		m.CompletedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create message")
	}
	return nil
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageSelectColumns + ` FROM async_message WHERE id = ?`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("message not found: %s", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get message")
	}
	return m, nil
}

// UpdateMessage writes the mutable fields of a message
func (s *Store) UpdateMessage(ctx context.Context, m *Message) error {
	query := `
		UPDATE async_message
		SET status = ?,
		    error = ?,
		    retry_count = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	errMsg := sql.NullString{String: m.Error, Valid: m.Error != ""}
	result, err := s.db.ExecContext(ctx, query,
		m.Status,
		errMsg,
		m.RetryCount,
		m.StartedAt,
		m.CompletedAt,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update message")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Mark(errors.Newf("message not found: %s", m.ID), errors.ErrNotFound)
	}
	return nil
}

// ClaimMessage moves a queued message to running.
// Returns false if another worker claimed it first.
func (s *Store) ClaimMessage(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE async_message
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued'`,
		now, now, id,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim message")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// OldestQueuedIDs returns the ids of the oldest queued messages
func (s *Store) OldestQueuedIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM async_message
		WHERE status = 'queued'
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queued messages")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan message id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate queued messages")
}

// ListMessages returns messages, newest first, optionally filtered by status
func (s *Store) ListMessages(ctx context.Context, status *MessageStatus, limit int) ([]*Message, error) {
	query := `SELECT ` + messageSelectColumns + ` FROM async_message`
	args := []any{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		messages = append(messages, m)
	}
	return messages, errors.Wrap(rows.Err(), "failed to iterate messages")
}

// CountByStatus returns the number of messages per status
func (s *Store) CountByStatus(ctx context.Context) (map[MessageStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM async_message GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count messages")
	}
	defer rows.Close()

	counts := make(map[MessageStatus]int)
	for rows.Next() {
		var status MessageStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan message count")
		}
		counts[status] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate message counts")
}

// RequeueRunning moves every running message back to queued and returns how many moved.
func (s *Store) RequeueRunning(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE async_message
		SET status = 'queued', started_at = NULL, updated_at = ?, error = 'recovered after interrupted run'
		WHERE status = 'running'`, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue running messages")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// CleanupOldMessages removes completed/failed messages older than the specified duration
func (s *Store) CleanupOldMessages(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM async_message
		WHERE status IN ('completed', 'failed')
		  AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old messages")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}
