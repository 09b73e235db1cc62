// Package events publishes outbound notifications about prisoner allocations and attendances.
package events

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/logger"
)

// Type is an outbound event type
type Type string

const (
	AttendanceCreated Type = "PRISONER_ATTENDANCE_CREATED"
	AttendanceExpired Type = "PRISONER_ATTENDANCE_EXPIRED"
	AttendanceAmended Type = "PRISONER_ATTENDANCE_AMENDED"
	AllocationAmended Type = "PRISONER_ALLOCATION_AMENDED"
)

var wireNames = map[Type]string{
	AttendanceCreated: "activities.prisoner.attendance-created",
	AttendanceExpired: "activities.prisoner.attendance-expired",
	AttendanceAmended: "activities.prisoner.attendance-amended",
	AllocationAmended: "activities.prisoner.allocation-amended",
}

// WireName is the name downstream consumers subscribe to
func (t Type) WireName() string {
	return wireNames[t]
}

// ParseType accepts either the constant or the wire name.
func ParseType(s string) (Type, error) {
	for t, wire := range wireNames {
		if s == string(t) || s == wire {
			return t, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown event type %q", s)
}

// Publisher sends fire-and-forget notifications
type Publisher interface {
	Send(ctx context.Context, eventType Type, entityID int64) error
}

// Event is one published notification
type Event struct {
	ID         int64     `json:"id" yaml:"id"`
	Type       Type      `json:"eventType" yaml:"event_type"`
	EntityID   int64     `json:"entityId" yaml:"entity_id"`
	OccurredAt time.Time `json:"occurredAt" yaml:"occurred_at"`
}

// Outbox records published events in the outbound_event table and logs them.
type Outbox struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

var _ Publisher = (*Outbox)(nil)

// NewOutbox creates a sqlite outbox publisher
func NewOutbox(db *sql.DB, log *zap.SugaredLogger) *Outbox {
	return &Outbox{db: db, log: log.Named("events"), now: func() time.Time { return time.Now().UTC() }}
}

// Send records the event
func (o *Outbox) Send(ctx context.Context, eventType Type, entityID int64) error {
	if eventType.WireName() == "" {
		return errors.NewInvalidRequestError("unknown event type %q", eventType)
	}

	_, err := o.db.ExecContext(ctx,
		`INSERT INTO outbound_event (event_type, entity_id, occurred_at) VALUES (?, ?, ?)`,
		eventType, entityID, o.now().Format(util.TimestampLayout))
	if err != nil {
		return errors.Wrapf(err, "failed to publish %s for %d", eventType.WireName(), entityID)
	}

	o.log.Debugw("Event published", "event", eventType.WireName(), "entity_id", entityID)
	return nil
}

// List returns published events, newest first, optionally of one type
func (o *Outbox) List(ctx context.Context, eventType *Type, limit int) ([]Event, error) {
	query := `SELECT id, event_type, entity_id, occurred_at FROM outbound_event`
	var args []interface{}
	if eventType != nil {
		query += ` WHERE event_type = ?`
		args = append(args, *eventType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var e Event
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityID, &occurredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		if e.OccurredAt, err = time.Parse(util.TimestampLayout, occurredAt); err != nil {
			return nil, errors.Wrapf(err, "event %d has invalid occurred_at", e.ID)
		}
		result = append(result, e)
	}
	return result, errors.Wrap(rows.Err(), "failed to iterate events")
}

// LogPublisher only logs. Used when no outbox is configured.
type LogPublisher struct {
	Log *zap.SugaredLogger
}

// Send logs the event
func (p LogPublisher) Send(ctx context.Context, eventType Type, entityID int64) error {
	logger.FromContext(ctx, p.Log).Infow("Event published", "event", eventType.WireName(), "entity_id", entityID)
	return nil
}
