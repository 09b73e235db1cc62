// Package rollout records which prisons are live for scheduled lifecycle processing.
package rollout

import (
	"context"
	"database/sql"
	"time"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
)

// Prison is the rollout state of one prison
type Prison struct {
	Code                    string     `json:"prisonCode" yaml:"prison_code"`
	Description             string     `json:"description" yaml:"description"`
	ActivitiesRolledOut     bool       `json:"activitiesRolledOut" yaml:"activities_rolled_out"`
	ActivitiesRolloutDate   *time.Time `json:"activitiesRolloutDate,omitempty" yaml:"activities_rollout_date,omitempty"`
	AppointmentsRolledOut   bool       `json:"appointmentsRolledOut" yaml:"appointments_rolled_out"`
	AppointmentsRolloutDate *time.Time `json:"appointmentsRolloutDate,omitempty" yaml:"appointments_rollout_date,omitempty"`
	PrisonLive              bool       `json:"prisonLive" yaml:"prison_live"`
}

// ActivitiesLiveOn reports whether activities are rolled out at the prison on date.
// A rollout date in the future means not yet.
func (p Prison) ActivitiesLiveOn(date time.Time) bool {
	if !p.ActivitiesRolledOut {
		return false
	}
	return p.ActivitiesRolloutDate == nil || !p.ActivitiesRolloutDate.After(date)
}

// EligibleOn reports whether the prison takes lifecycle sub-tasks on date:
// live, and activities rolled out by then.
func (p Prison) EligibleOn(date time.Time) bool {
	return p.PrisonLive && p.ActivitiesLiveOn(date)
}

// Registry answers rollout questions for the dispatcher and the handlers.
// Both judge rollout dates against the same Today.
type Registry interface {
	GetRolloutPrisons(ctx context.Context) ([]Prison, error)
	IsActivitiesRolledOutAt(ctx context.Context, prisonCode string) (bool, error)
	Today() time.Time
}

// Store is the sqlite-backed Registry
type Store struct {
	db       *sql.DB
	now      func() time.Time
	location *time.Location
}

var _ Registry = (*Store)(nil)

// NewStore creates a rollout store. "Today" is computed in loc.
func NewStore(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, now: time.Now, location: loc}
}

const prisonColumns = `prison_code, description, activities_rolled_out, activities_rollout_date,
	appointments_rolled_out, appointments_rollout_date, prison_live`

func scanPrison(row interface{ Scan(...any) error }) (*Prison, error) {
	var p Prison
	var activitiesDate, appointmentsDate sql.NullString

	if err := row.Scan(&p.Code, &p.Description, &p.ActivitiesRolledOut, &activitiesDate,
		&p.AppointmentsRolledOut, &appointmentsDate, &p.PrisonLive); err != nil {
		return nil, err
	}

	var err error
	if p.ActivitiesRolloutDate, err = util.ScanDate(activitiesDate); err != nil {
		return nil, err
	}
	if p.AppointmentsRolloutDate, err = util.ScanDate(appointmentsDate); err != nil {
		return nil, err
	}
	return &p, nil
}

// Today is the current calendar date in the store's location
func (s *Store) Today() time.Time {
	return util.Today(s.now(), s.location)
}

// GetRolloutPrisons returns every known prison ordered by code
func (s *Store) GetRolloutPrisons(ctx context.Context) ([]Prison, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+prisonColumns+` FROM rollout_prison ORDER BY prison_code`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rollout prisons")
	}
	defer rows.Close()

	var prisons []Prison
	for rows.Next() {
		p, err := scanPrison(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan rollout prison")
		}
		prisons = append(prisons, *p)
	}
	return prisons, errors.Wrap(rows.Err(), "failed to iterate rollout prisons")
}

// Get returns one prison's rollout state
func (s *Store) Get(ctx context.Context, prisonCode string) (*Prison, error) {
	p, err := scanPrison(s.db.QueryRowContext(ctx,
		`SELECT `+prisonColumns+` FROM rollout_prison WHERE prison_code = ?`, prisonCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("prison %s is not in the rollout registry", prisonCode)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get rollout prison %s", prisonCode)
	}
	return p, nil
}

// IsActivitiesRolledOutAt reports whether activities are live at the prison today.
// Unknown prisons are not rolled out.
func (s *Store) IsActivitiesRolledOutAt(ctx context.Context, prisonCode string) (bool, error) {
	p, err := s.Get(ctx, prisonCode)
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.ActivitiesLiveOn(s.Today()), nil
}

// Upsert creates or replaces a prison's rollout state
func (s *Store) Upsert(ctx context.Context, p Prison) error {
	if p.Code == "" {
		return errors.NewInvalidRequestError("prison code is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollout_prison (`+prisonColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(prison_code) DO UPDATE SET
			description = excluded.description,
			activities_rolled_out = excluded.activities_rolled_out,
			activities_rollout_date = excluded.activities_rollout_date,
			appointments_rolled_out = excluded.appointments_rolled_out,
			appointments_rollout_date = excluded.appointments_rollout_date,
			prison_live = excluded.prison_live,
			updated_at = excluded.updated_at`,
		p.Code, p.Description, p.ActivitiesRolledOut, util.NullDate(p.ActivitiesRolloutDate),
		p.AppointmentsRolledOut, util.NullDate(p.AppointmentsRolloutDate), p.PrisonLive,
		s.now().UTC().Format(util.TimestampLayout))
	if err != nil {
		return errors.Wrapf(err, "failed to save rollout prison %s", p.Code)
	}
	return nil
}
