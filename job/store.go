package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
)

// Store is the job registry
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const jobColumns = `id, job_type, started_at, ended_at, total_sub_tasks, completed_sub_tasks, successful`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	var startedAt string
	var endedAt sql.NullString

	if err := row.Scan(&j.ID, &j.Type, &startedAt, &endedAt, &j.TotalSubTasks, &j.CompletedSubTasks, &j.Successful); err != nil {
		return nil, err
	}

	started, err := time.Parse(util.TimestampLayout, startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "job %d has invalid started_at", j.ID)
	}
	j.StartedAt = started
	if j.EndedAt, err = util.ScanTimestamp(endedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// Create records a new job with no sub-tasks yet.
func (s *Store) Create(ctx context.Context, jobType JobType) (*Job, error) {
	if _, err := ParseJobType(string(jobType)); err != nil {
		return nil, err
	}

	startedAt := s.now().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job (job_type, started_at) VALUES (?, ?)`,
		jobType, startedAt.Format(util.TimestampLayout))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s job", jobType)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read job id")
	}

	return &Job{ID: id, Type: jobType, StartedAt: startedAt}, nil
}

// InitialiseCounts sets the number of sub-tasks the job waits for.
// A job with nothing to wait for is successful straight away.
func (s *Store) InitialiseCounts(ctx context.Context, jobID int64, total int) error {
	if total < 0 {
		return errors.NewInvalidRequestError("job %d cannot have %d sub-tasks", jobID, total)
	}

	now := s.now().Format(util.TimestampLayout)
	res, err := s.db.ExecContext(ctx, `
		UPDATE job SET
			total_sub_tasks = ?,
			completed_sub_tasks = 0,
			successful = (? = 0),
			ended_at = CASE WHEN ? = 0 THEN ? ELSE NULL END
		WHERE id = ?`,
		total, total, total, now, jobID)
	if err != nil {
		err = errors.Wrap(err, "failed to initialise job counts")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %d, total: %d", jobID, total))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %d not found", jobID)
	}
	return nil
}

// IncrementCount records the sub-task of prisonCode as completed and reports whether
// it was the last. Each prison counts once per job: a redelivered sub-task changes
// nothing and returns false. The counter itself moves in a single conditional UPDATE,
// so concurrent completions never lose a count.
func (s *Store) IncrementCount(ctx context.Context, jobID int64, prisonCode string) (bool, error) {
	now := s.now().Format(util.TimestampLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin job count transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO job_sub_task (job_id, prison_code, completed_at)
		SELECT id, ?, ? FROM job WHERE id = ?
		ON CONFLICT(job_id, prison_code) DO NOTHING`,
		prisonCode, now, jobID)
	if err != nil {
		err = errors.Wrap(err, "failed to record sub-task completion")
		return false, errors.WithDetail(err, fmt.Sprintf("Job ID: %d, prison: %s", jobID, prisonCode))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown or already counted for this prison
		tx.Rollback()
		if _, getErr := s.Get(ctx, jobID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}

	var completed, total int
	err = tx.QueryRowContext(ctx, `
		UPDATE job SET
			completed_sub_tasks = completed_sub_tasks + 1,
			successful = (completed_sub_tasks + 1 = total_sub_tasks),
			ended_at = CASE WHEN completed_sub_tasks + 1 = total_sub_tasks THEN ? ELSE ended_at END
		WHERE id = ? AND completed_sub_tasks < total_sub_tasks
		RETURNING completed_sub_tasks, total_sub_tasks`,
		now, jobID).Scan(&completed, &total)
	if errors.Is(err, sql.ErrNoRows) {
		// Already complete; keep the counter at total
		return false, nil
	}
	if err != nil {
		err = errors.Wrap(err, "failed to increment job count")
		return false, errors.WithDetail(err, fmt.Sprintf("Job ID: %d", jobID))
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit job count")
	}
	return completed == total, nil
}

// Get returns a job by id
func (s *Store) Get(ctx context.Context, jobID int64) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %d not found", jobID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %d", jobID)
	}
	return j, nil
}

// List returns the most recent jobs first, optionally of one type.
func (s *Store) List(ctx context.Context, jobType *JobType, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job`
	var args []interface{}
	if jobType != nil {
		query += ` WHERE job_type = ?`
		args = append(args, *jobType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Wrap(rows.Err(), "failed to iterate jobs")
}
