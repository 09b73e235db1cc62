package allocation

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
	FindByPrisonCodeAndStatus(ctx context.Context, prisonCode string, statuses ...Status) ([]*Allocation, error)
	FindByPrisoner(ctx context.Context, prisonCode, prisonerNumber string, statuses ...Status) ([]*Allocation, error)
	Save(ctx context.Context, a *Allocation) error
	GetSchedule(ctx context.Context, scheduleID int64) (*Schedule, error)
	DeclineWaitingList(ctx context.Context, activityID int64, prisonerNumber, reason, by string, at time.Time) (int, error)
}

// Store is the sqlite Repository
type Store struct {
	db *sql.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates an allocation store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const allocationSelect = `
	SELECT a.id, a.prison_code, a.prisoner_number, a.activity_schedule_id, s.activity_id,
		a.prisoner_status, a.start_date, a.end_date, a.allocated_time, a.allocated_by,
		a.deallocated_time, a.deallocated_reason, a.deallocated_by,
		a.suspended_time, a.suspended_reason, a.suspended_by,
		ps.start_date, ps.end_date, ps.paid, ps.planned_by,
		pd.planned_date, pd.reason, pd.planned_by
	FROM allocation a
	JOIN activity_schedule s ON s.id = a.activity_schedule_id
	LEFT JOIN planned_suspension ps ON ps.allocation_id = a.id
	LEFT JOIN planned_deallocation pd ON pd.allocation_id = a.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(row rowScanner) (*Allocation, error) {
	var a Allocation
	var startDate, allocatedTime string
	var endDate, deallocatedTime, deallocatedReason, deallocatedBy sql.NullString
	var suspendedTime, suspendedReason, suspendedBy sql.NullString
	var psStart, psEnd, psBy sql.NullString
	var psPaid sql.NullBool
	var pdDate, pdReason, pdBy sql.NullString

	err := row.Scan(&a.ID, &a.PrisonCode, &a.PrisonerNumber, &a.ActivityScheduleID, &a.ActivityID,
		&a.Status, &startDate, &endDate, &allocatedTime, &a.AllocatedBy,
		&deallocatedTime, &deallocatedReason, &deallocatedBy,
		&suspendedTime, &suspendedReason, &suspendedBy,
		&psStart, &psEnd, &psPaid, &psBy,
		&pdDate, &pdReason, &pdBy)
	if err != nil {
		return nil, err
	}

	if a.StartDate, err = util.ParseDate(startDate); err != nil {
		return nil, err
	}
	if a.EndDate, err = util.ScanDate(endDate); err != nil {
		return nil, err
	}
	allocated, err := time.Parse(util.TimestampLayout, allocatedTime)
	if err != nil {
		return nil, errors.Wrapf(err, "allocation %d has invalid allocated_time", a.ID)
	}
	a.AllocatedTime = allocated
	if a.DeallocatedTime, err = util.ScanTimestamp(deallocatedTime); err != nil {
		return nil, err
	}
	if a.SuspendedTime, err = util.ScanTimestamp(suspendedTime); err != nil {
		return nil, err
	}
	a.DeallocatedReason, a.DeallocatedBy = deallocatedReason.String, deallocatedBy.String
	a.SuspendedReason, a.SuspendedBy = suspendedReason.String, suspendedBy.String

	if psStart.Valid {
		ps := &PlannedSuspension{Paid: psPaid.Bool, PlannedBy: psBy.String}
		if ps.StartDate, err = util.ParseDate(psStart.String); err != nil {
			return nil, err
		}
		if ps.EndDate, err = util.ScanDate(psEnd); err != nil {
			return nil, err
		}
		a.PlannedSuspension = ps
	}
	if pdDate.Valid {
		pd := &PlannedDeallocation{Reason: pdReason.String, PlannedBy: pdBy.String}
		if pd.PlannedDate, err = util.ParseDate(pdDate.String); err != nil {
			return nil, err
		}
		a.PlannedDeallocation = pd
	}
	return &a, nil
}

func statusPlaceholders(statuses []Status) (string, []any) {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", "), args
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*Allocation, error) {
	rows, err := s.db.QueryContext(ctx, allocationSelect+` WHERE `+where+` ORDER BY a.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query allocations")
	}
	defer rows.Close()

	var allocations []*Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan allocation")
		}
		allocations = append(allocations, a)
	}
	return allocations, errors.Wrap(rows.Err(), "failed to iterate allocations")
}

// FindByPrisonCodeAndStatus returns the prison's allocations currently in one of statuses
func (s *Store) FindByPrisonCodeAndStatus(ctx context.Context, prisonCode string, statuses ...Status) ([]*Allocation, error) {
	placeholders, args := statusPlaceholders(statuses)
	return s.query(ctx, `a.prison_code = ? AND a.prisoner_status IN (`+placeholders+`)`,
		append([]any{prisonCode}, args...)...)
}

// FindByPrisoner returns one prisoner's allocations at the prison currently in one of statuses
func (s *Store) FindByPrisoner(ctx context.Context, prisonCode, prisonerNumber string, statuses ...Status) ([]*Allocation, error) {
	placeholders, args := statusPlaceholders(statuses)
	return s.query(ctx, `a.prison_code = ? AND a.prisoner_number = ? AND a.prisoner_status IN (`+placeholders+`)`,
		append([]any{prisonCode, prisonerNumber}, args...)...)
}

// Get returns one allocation
func (s *Store) Get(ctx context.Context, id int64) (*Allocation, error) {
	found, err := s.query(ctx, `a.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.NewNotFoundError("allocation %d not found", id)
	}
	return found[0], nil
}

// Create inserts a new allocation with its planned changes
func (s *Store) Create(ctx context.Context, a *Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if a.AllocatedTime.IsZero() {
		a.AllocatedTime = time.Now().UTC().Truncate(time.Second)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO allocation (prison_code, prisoner_number, activity_schedule_id, prisoner_status,
			start_date, end_date, allocated_time, allocated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PrisonCode, a.PrisonerNumber, a.ActivityScheduleID, a.Status,
		util.FormatDate(a.StartDate), util.NullDate(a.EndDate),
		a.AllocatedTime.UTC().Format(util.TimestampLayout), a.AllocatedBy)
	if err != nil {
		err = errors.Wrap(err, "failed to create allocation")
		return errors.WithDetail(err, fmt.Sprintf("Prisoner: %s, schedule: %d", a.PrisonerNumber, a.ActivityScheduleID))
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "failed to read allocation id")
	}

	if err := savePlans(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit allocation")
	}

	if err := s.db.QueryRowContext(ctx, `SELECT activity_id FROM activity_schedule WHERE id = ?`,
		a.ActivityScheduleID).Scan(&a.ActivityID); err != nil {
		return errors.Wrapf(err, "failed to read activity of schedule %d", a.ActivityScheduleID)
	}
	return nil
}

// Save persists the allocation's state and planned changes in one transaction.
func (s *Store) Save(ctx context.Context, a *Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE allocation SET
			prisoner_status = ?, end_date = ?,
			deallocated_time = ?, deallocated_reason = ?, deallocated_by = ?,
			suspended_time = ?, suspended_reason = ?, suspended_by = ?
		WHERE id = ?`,
		a.Status, util.NullDate(a.EndDate),
		util.NullTimestamp(a.DeallocatedTime), nullString(a.DeallocatedReason), nullString(a.DeallocatedBy),
		util.NullTimestamp(a.SuspendedTime), nullString(a.SuspendedReason), nullString(a.SuspendedBy),
		a.ID)
	if err != nil {
		err = errors.Wrap(err, "failed to save allocation")
		return errors.WithDetail(err, fmt.Sprintf("Allocation ID: %d, status: %s", a.ID, a.Status))
	}

	if err := savePlans(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit allocation %d", a.ID)
	}
	return nil
}

func savePlans(ctx context.Context, tx *sql.Tx, a *Allocation) error {
	now := time.Now().UTC().Format(util.TimestampLayout)

	if ps := a.PlannedSuspension; ps != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO planned_suspension (allocation_id, start_date, end_date, paid, planned_by, planned_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(allocation_id) DO UPDATE SET
				start_date = excluded.start_date, end_date = excluded.end_date,
				paid = excluded.paid, planned_by = excluded.planned_by`,
			a.ID, util.FormatDate(ps.StartDate), util.NullDate(ps.EndDate), ps.Paid, ps.PlannedBy, now)
		if err != nil {
			return errors.Wrapf(err, "failed to save planned suspension of allocation %d", a.ID)
		}
	} else if _, err := tx.ExecContext(ctx, `DELETE FROM planned_suspension WHERE allocation_id = ?`, a.ID); err != nil {
		return errors.Wrapf(err, "failed to clear planned suspension of allocation %d", a.ID)
	}

	if pd := a.PlannedDeallocation; pd != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO planned_deallocation (allocation_id, planned_date, reason, planned_by, planned_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(allocation_id) DO UPDATE SET
				planned_date = excluded.planned_date, reason = excluded.reason, planned_by = excluded.planned_by`,
			a.ID, util.FormatDate(pd.PlannedDate), pd.Reason, pd.PlannedBy, now)
		if err != nil {
			return errors.Wrapf(err, "failed to save planned deallocation of allocation %d", a.ID)
		}
	} else if _, err := tx.ExecContext(ctx, `DELETE FROM planned_deallocation WHERE allocation_id = ?`, a.ID); err != nil {
		return errors.Wrapf(err, "failed to clear planned deallocation of allocation %d", a.ID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetSchedule returns an activity schedule by id
func (s *Store) GetSchedule(ctx context.Context, scheduleID int64) (*Schedule, error) {
	var sch Schedule
	var startDate string
	var endDate sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, prison_code, start_date, end_date FROM activity_schedule WHERE id = ?`,
		scheduleID).Scan(&sch.ID, &sch.ActivityID, &sch.PrisonCode, &startDate, &endDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("activity schedule %d not found", scheduleID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get activity schedule %d", scheduleID)
	}
	if sch.StartDate, err = util.ParseDate(startDate); err != nil {
		return nil, err
	}
	if sch.EndDate, err = util.ScanDate(endDate); err != nil {
		return nil, err
	}
	return &sch, nil
}

// DeclineWaitingList declines PENDING and APPROVED applications for the activity.
// An empty prisonerNumber declines everyone's.
func (s *Store) DeclineWaitingList(ctx context.Context, activityID int64, prisonerNumber, reason, by string, at time.Time) (int, error) {
	query := `
		UPDATE waiting_list SET status = ?, declined_reason = ?, status_updated_time = ?, updated_by = ?
		WHERE activity_id = ? AND status IN (?, ?)`
	args := []any{WaitingListDeclined, reason, at.UTC().Format(util.TimestampLayout), by,
		activityID, WaitingListPending, WaitingListApproved}
	if prisonerNumber != "" {
		query += ` AND prisoner_number = ?`
		args = append(args, prisonerNumber)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to decline waiting list for activity %d", activityID)
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "failed to count declined applications")
}

// AddToWaitingList records an application
func (s *Store) AddToWaitingList(ctx context.Context, w *WaitingListApplication) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO waiting_list (prison_code, activity_id, prisoner_number, status) VALUES (?, ?, ?, ?)`,
		w.PrisonCode, w.ActivityID, w.PrisonerNumber, w.Status)
	if err != nil {
		return errors.Wrapf(err, "failed to add %s to waiting list", w.PrisonerNumber)
	}
	w.ID, err = res.LastInsertId()
	return errors.Wrap(err, "failed to read waiting list id")
}

// WaitingList returns the activity's applications in id order
func (s *Store) WaitingList(ctx context.Context, activityID int64) ([]WaitingListApplication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prison_code, activity_id, prisoner_number, status, declined_reason, updated_by
		FROM waiting_list WHERE activity_id = ? ORDER BY id`, activityID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list waiting list for activity %d", activityID)
	}
	defer rows.Close()

	var apps []WaitingListApplication
	for rows.Next() {
		var w WaitingListApplication
		var reason, by sql.NullString
		if err := rows.Scan(&w.ID, &w.PrisonCode, &w.ActivityID, &w.PrisonerNumber, &w.Status, &reason, &by); err != nil {
			return nil, errors.Wrap(err, "failed to scan waiting list application")
		}
		w.DeclinedReason, w.UpdatedBy = reason.String, by.String
		apps = append(apps, w)
	}
	return apps, errors.Wrap(rows.Err(), "failed to iterate waiting list")
}
