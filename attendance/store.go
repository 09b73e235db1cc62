package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
)

// Repository is the persistence the engine needs.
type Repository interface {
	InstancesOn(ctx context.Context, prisonCode string, date time.Time) ([]ScheduledInstance, error)
	AllocatedOn(ctx context.Context, scheduleID int64, date time.Time) ([]Allocated, error)
	Exists(ctx context.Context, instanceID int64, prisonerNumber string) (bool, error)
	Insert(ctx context.Context, a *Attendance) (bool, error)
	FindWaitingOnDate(ctx context.Context, prisonCode string, date time.Time) ([]*Attendance, error)
	SuspendFuture(ctx context.Context, prisonCode, prisonerNumber, date, clock, by string, at time.Time) ([]int64, error)
	ResetFuture(ctx context.Context, prisonCode, prisonerNumber string, scheduleIDs []int64, date, clock string) ([]int64, error)
}

// Store is the sqlite Repository
type Store struct {
	db *sql.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates an attendance store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InstancesOn returns the prison's sessions on date that are not cancelled
func (s *Store) InstancesOn(ctx context.Context, prisonCode string, date time.Time) ([]ScheduledInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.activity_schedule_id, si.session_date, si.start_time, si.end_time, si.cancelled,
			act.attendance_required
		FROM scheduled_instance si
		JOIN activity_schedule s ON s.id = si.activity_schedule_id
		JOIN activity act ON act.id = s.activity_id
		WHERE s.prison_code = ? AND si.session_date = ? AND si.cancelled = 0
		ORDER BY si.start_time, si.id`,
		prisonCode, util.FormatDate(date))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query sessions at %s", prisonCode)
	}
	defer rows.Close()

	var instances []ScheduledInstance
	for rows.Next() {
		var si ScheduledInstance
		var sessionDate string
		if err := rows.Scan(&si.ID, &si.ActivityScheduleID, &sessionDate, &si.StartTime, &si.EndTime,
			&si.Cancelled, &si.AttendanceRequired); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		if si.SessionDate, err = util.ParseDate(sessionDate); err != nil {
			return nil, err
		}
		instances = append(instances, si)
	}
	return instances, errors.Wrap(rows.Err(), "failed to iterate sessions")
}

// AllocatedOn returns the schedule's allocations that attend on date
func (s *Store) AllocatedOn(ctx context.Context, scheduleID int64, date time.Time) ([]Allocated, error) {
	args := []any{scheduleID, util.FormatDate(date), util.FormatDate(date)}
	for _, st := range attendingStatuses {
		args = append(args, st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prisoner_number, prisoner_status
		FROM allocation
		WHERE activity_schedule_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
			AND prisoner_status IN (?, ?, ?, ?)
		ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query allocations of schedule %d", scheduleID)
	}
	defer rows.Close()

	var allocated []Allocated
	for rows.Next() {
		var a Allocated
		if err := rows.Scan(&a.AllocationID, &a.PrisonerNumber, &a.Status); err != nil {
			return nil, errors.Wrap(err, "failed to scan allocation")
		}
		allocated = append(allocated, a)
	}
	return allocated, errors.Wrap(rows.Err(), "failed to iterate allocations")
}

// Exists reports whether the prisoner already has an attendance for the session
func (s *Store) Exists(ctx context.Context, instanceID int64, prisonerNumber string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE scheduled_instance_id = ? AND prisoner_number = ?`,
		instanceID, prisonerNumber).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check attendance of %s at session %d", prisonerNumber, instanceID)
	}
	return n > 0, nil
}

// Insert creates the attendance unless one exists for the same session and prisoner.
// Reports whether a row was created.
func (s *Store) Insert(ctx context.Context, a *Attendance) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (scheduled_instance_id, prisoner_number, status, attendance_reason,
			issue_payment, recorded_by, recorded_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scheduled_instance_id, prisoner_number) DO NOTHING`,
		a.ScheduledInstanceID, a.PrisonerNumber, a.Status, nullString(a.Reason),
		a.IssuePayment, nullString(a.RecordedBy), util.NullTimestamp(a.RecordedTime))
	if err != nil {
		err = errors.Wrap(err, "failed to create attendance")
		return false, errors.WithDetail(err, fmt.Sprintf("Session: %d, prisoner: %s", a.ScheduledInstanceID, a.PrisonerNumber))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	a.ID, err = res.LastInsertId()
	return true, errors.Wrap(err, "failed to read attendance id")
}

const attendanceSelect = `
	SELECT att.id, att.scheduled_instance_id, att.prisoner_number, att.status, att.attendance_reason,
		att.issue_payment, att.recorded_by, att.recorded_time
	FROM attendance att
	JOIN scheduled_instance si ON si.id = att.scheduled_instance_id
	JOIN activity_schedule s ON s.id = si.activity_schedule_id`

func (s *Store) queryAttendances(ctx context.Context, where string, args ...any) ([]*Attendance, error) {
	rows, err := s.db.QueryContext(ctx, attendanceSelect+` WHERE `+where+` ORDER BY att.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query attendances")
	}
	defer rows.Close()

	var attendances []*Attendance
	for rows.Next() {
		var a Attendance
		var reason, recordedBy, recordedTime sql.NullString
		if err := rows.Scan(&a.ID, &a.ScheduledInstanceID, &a.PrisonerNumber, &a.Status, &reason,
			&a.IssuePayment, &recordedBy, &recordedTime); err != nil {
			return nil, errors.Wrap(err, "failed to scan attendance")
		}
		a.Reason, a.RecordedBy = reason.String, recordedBy.String
		if a.RecordedTime, err = util.ScanTimestamp(recordedTime); err != nil {
			return nil, err
		}
		attendances = append(attendances, &a)
	}
	return attendances, errors.Wrap(rows.Err(), "failed to iterate attendances")
}

// FindWaitingOnDate returns the prison's unmarked attendances for sessions on date
func (s *Store) FindWaitingOnDate(ctx context.Context, prisonCode string, date time.Time) ([]*Attendance, error) {
	return s.queryAttendances(ctx, `s.prison_code = ? AND si.session_date = ? AND att.status = ?`,
		prisonCode, util.FormatDate(date), Waiting)
}

// FindOnDate returns all the prison's attendances for sessions on date
func (s *Store) FindOnDate(ctx context.Context, prisonCode string, date time.Time) ([]*Attendance, error) {
	return s.queryAttendances(ctx, `s.prison_code = ? AND si.session_date = ?`, prisonCode, util.FormatDate(date))
}

// futureSessions selects the prison's sessions starting after date and clock (HH:MM).
const futureSessions = `
	SELECT si.id FROM scheduled_instance si
	JOIN activity_schedule s ON s.id = si.activity_schedule_id
	WHERE s.prison_code = ? AND (si.session_date > ? OR (si.session_date = ? AND si.start_time > ?))`

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan attendance id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate attendance ids")
}

// SuspendFuture completes the prisoner's unmarked future attendances as auto-suspended.
// Returns the ids changed.
func (s *Store) SuspendFuture(ctx context.Context, prisonCode, prisonerNumber, date, clock, by string, at time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE attendance SET status = ?, attendance_reason = ?, issue_payment = 0,
			recorded_by = ?, recorded_time = ?
		WHERE prisoner_number = ? AND status = ? AND scheduled_instance_id IN (`+futureSessions+`)
		RETURNING id`,
		Completed, ReasonAutoSuspended, by, at.UTC().Format(util.TimestampLayout),
		prisonerNumber, Waiting, prisonCode, date, date, clock)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to suspend future attendances of %s", prisonerNumber)
	}
	return collectIDs(rows)
}

// ResetFuture returns the prisoner's future suspended attendances on the given schedules to waiting.
// Returns the ids changed.
func (s *Store) ResetFuture(ctx context.Context, prisonCode, prisonerNumber string, scheduleIDs []int64, date, clock string) ([]int64, error) {
	if len(scheduleIDs) == 0 {
		return nil, nil
	}
	args := []any{Waiting, prisonerNumber, Completed, ReasonSuspended, ReasonAutoSuspended, prisonCode, date, date, clock}
	for _, id := range scheduleIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(scheduleIDs)), ", ")

	rows, err := s.db.QueryContext(ctx, `
		UPDATE attendance SET status = ?, attendance_reason = NULL, issue_payment = 0,
			recorded_by = NULL, recorded_time = NULL
		WHERE prisoner_number = ? AND status = ? AND attendance_reason IN (?, ?)
			AND scheduled_instance_id IN (`+futureSessions+` AND si.activity_schedule_id IN (`+placeholders+`))
		RETURNING id`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reset future attendances of %s", prisonerNumber)
	}
	return collectIDs(rows)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
