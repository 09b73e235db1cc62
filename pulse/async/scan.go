package async

import (
	"database/sql"
)

// messageScanArgs holds the nullable columns of a message row.
type messageScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// messageSelectColumns is the column list every message SELECT uses
const messageSelectColumns = `id, handler_name, prison_code, payload, status, error,
		retry_count, created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage reads one row produced by a messageSelectColumns query.
func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var args messageScanArgs

	if err := row.Scan(
		&m.ID,
		&m.HandlerName,
		&m.PrisonCode,
		&args.Payload,
		&m.Status,
		&args.ErrorMsg,
		&m.RetryCount,
		&m.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if args.Payload.Valid {
		m.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		m.Error = args.ErrorMsg.String
	}
	if args.StartedAt.Valid {
		m.StartedAt = &args.StartedAt.Time
	}
	if args.CompletedAt.Valid {
		m.CompletedAt = &args.CompletedAt.Time
	}
	return &m, nil
}
