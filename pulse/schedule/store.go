package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
)

// Store handles persistence of schedule entries
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const entryColumns = `job_type, run_at, enabled, last_run_date, last_job_id, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var lastRunDate sql.NullString
	var lastJobID sql.NullInt64
	var createdAt, updatedAt string

	if err := row.Scan(&e.JobType, &e.RunAt, &e.Enabled, &lastRunDate, &lastJobID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d, err := util.ScanDate(lastRunDate)
	if err != nil {
		return nil, err
	}
	e.LastRunDate = d
	if lastJobID.Valid {
		e.LastJobID = util.Ptr(lastJobID.Int64)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrap(err, "invalid updated_at")
	}
	return &e, nil
}

// Upsert creates or replaces the run time and enabled flag of an entry.
// Run history is kept.
func (s *Store) Upsert(ctx context.Context, jobType, runAt string, enabled bool) error {
	if err := ValidateRunAt(runAt); err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_schedule (job_type, run_at, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_type) DO UPDATE SET
			run_at = excluded.run_at,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		jobType, runAt, enabled, now, now)
	if err != nil {
		return errors.Wrapf(err, "failed to save schedule for %s", jobType)
	}
	return nil
}

// EnsureDefaults creates missing entries; existing entries are left alone.
// An empty run time means the job type is not scheduled.
func (s *Store) EnsureDefaults(ctx context.Context, runTimes map[string]string) error {
	now := s.now().UTC().Format(time.RFC3339)
	for jobType, runAt := range runTimes {
		if runAt == "" {
			continue
		}
		if err := ValidateRunAt(runAt); err != nil {
			return errors.Wrapf(err, "default schedule for %s", jobType)
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO lifecycle_schedule (job_type, run_at, enabled, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)`,
			jobType, runAt, now, now)
		if err != nil {
			return errors.Wrapf(err, "failed to create default schedule for %s", jobType)
		}
	}
	return nil
}

// Get retrieves the entry of a job type
func (s *Store) Get(ctx context.Context, jobType string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM lifecycle_schedule WHERE job_type = ?`, jobType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no schedule for %s", jobType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get schedule for %s", jobType)
	}
	return e, nil
}

// List returns all entries ordered by run time
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM lifecycle_schedule ORDER BY run_at, job_type`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate schedules")
}

// ClaimRun records that jobType runs for date. It returns false when the date
// was already claimed, so two tickers on one database start a job once.
func (s *Store) ClaimRun(ctx context.Context, jobType string, date time.Time) (bool, error) {
	d := util.FormatDate(date)
	result, err := s.db.ExecContext(ctx, `
		UPDATE lifecycle_schedule
		SET last_run_date = ?, updated_at = ?
		WHERE job_type = ? AND (last_run_date IS NULL OR last_run_date < ?)`,
		d, s.now().UTC().Format(time.RFC3339), jobType, d)
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim run of %s", jobType)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n == 1, nil
}

// ReleaseRun undoes ClaimRun, restoring the previous run date.
func (s *Store) ReleaseRun(ctx context.Context, jobType string, previous *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lifecycle_schedule SET last_run_date = ? WHERE job_type = ?`,
		util.NullDate(previous), jobType)
	return errors.Wrapf(err, "failed to release run of %s", jobType)
}

// RecordJob stores the job started by the latest run
func (s *Store) RecordJob(ctx context.Context, jobType string, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lifecycle_schedule SET last_job_id = ?, updated_at = ? WHERE job_type = ?`,
		jobID, s.now().UTC().Format(time.RFC3339), jobType)
	return errors.Wrapf(err, "failed to record job for %s", jobType)
}

// SetEnabled turns an entry on or off
func (s *Store) SetEnabled(ctx context.Context, jobType string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lifecycle_schedule SET enabled = ?, updated_at = ? WHERE job_type = ?`,
		enabled, s.now().UTC().Format(time.RFC3339), jobType)
	if err != nil {
		return errors.Wrapf(err, "failed to update schedule for %s", jobType)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("no schedule for %s", jobType)
	}
	return nil
}
