// Package schedule starts lifecycle jobs once a day at their configured time.
package schedule

import (
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// Entry is the daily schedule of one job type
type Entry struct {
	JobType     string     `json:"job_type" yaml:"job_type"`
	RunAt       string     `json:"run_at" yaml:"run_at"` // "HH:MM" in the configured zone
	Enabled     bool       `json:"enabled" yaml:"enabled"`
	LastRunDate *time.Time `json:"last_run_date,omitempty" yaml:"last_run_date,omitempty"`
	LastJobID   *int64     `json:"last_job_id,omitempty" yaml:"last_job_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// RunAtLayout is the layout of Entry.RunAt
const RunAtLayout = "15:04"

// ValidateRunAt checks an "HH:MM" run time
func ValidateRunAt(runAt string) error {
	if _, err := time.Parse(RunAtLayout, runAt); err != nil {
		return errors.NewInvalidRequestError("run time must be HH:MM, got %q", runAt)
	}
	return nil
}

// DueAt reports whether the entry should run at local time now.
// today is now's calendar date; an entry runs at most once per date.
func (e *Entry) DueAt(now time.Time, today time.Time) bool {
	if !e.Enabled {
		return false
	}
	if e.LastRunDate != nil && !e.LastRunDate.Before(today) {
		return false
	}
	return now.Format(RunAtLayout) >= e.RunAt
}
