package util

import (
	"database/sql"
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// DateLayout is how calendar dates are stored.
const DateLayout = "2006-01-02"

// TimestampLayout is how instants are stored.
const TimestampLayout = time.RFC3339

// Today returns the calendar date of now in loc, as UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOf(now.In(loc))
}

// DateOf drops the clock part of t, keeping t's calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a stored calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q", s)
	}
	return t, nil
}

// NullDate converts an optional date for storage.
func NullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatDate(*t), Valid: true}
}

// ScanDate converts a stored optional date.
func ScanDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// NullTimestamp converts an optional instant for storage.
func NullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(TimestampLayout), Valid: true}
}

// ScanTimestamp converts a stored optional instant.
func ScanTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(TimestampLayout, s.String)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timestamp %q", s.String)
	}
	return &t, nil
}
