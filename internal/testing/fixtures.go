package testing

import (
	"database/sql"
	"testing"
	"time"
)

// Fixture rows for the activity tables. Dates are written as YYYY-MM-DD.

func insert(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("Failed to insert fixture: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read fixture id: %v", err)
	}
	return id
}

func date(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format("2006-01-02")
}

// InsertActivity creates an activity at the prison running from 2026-01-01.
func InsertActivity(t *testing.T, db *sql.DB, prisonCode string, attendanceRequired bool) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO activity (prison_code, summary, attendance_required, start_date) VALUES (?, ?, ?, '2026-01-01')`,
		prisonCode, "Workshop", attendanceRequired)
}

// InsertSchedule creates a schedule of the activity, ending on endDate when given.
func InsertSchedule(t *testing.T, db *sql.DB, activityID int64, prisonCode string, endDate *time.Time) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO activity_schedule (activity_id, prison_code, description, start_date, end_date) VALUES (?, ?, ?, '2026-01-01', ?)`,
		activityID, prisonCode, "Workshop AM", date(endDate))
}

// InsertActivitySchedule creates an activity needing attendance and one schedule of it.
func InsertActivitySchedule(t *testing.T, db *sql.DB, prisonCode string, endDate *time.Time) (activityID, scheduleID int64) {
	t.Helper()
	activityID = InsertActivity(t, db, prisonCode, true)
	return activityID, InsertSchedule(t, db, activityID, prisonCode, endDate)
}

// InsertInstance creates a session of the schedule on sessionDate from start to end (HH:MM).
func InsertInstance(t *testing.T, db *sql.DB, scheduleID int64, sessionDate time.Time, start, end string, cancelled bool) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO scheduled_instance (activity_schedule_id, session_date, start_time, end_time, cancelled) VALUES (?, ?, ?, ?, ?)`,
		scheduleID, date(&sessionDate), start, end, cancelled)
}

// InsertWaitingList creates a waiting list application.
func InsertWaitingList(t *testing.T, db *sql.DB, prisonCode string, activityID int64, prisonerNumber, status string) int64 {
	t.Helper()
	return insert(t, db,
		`INSERT INTO waiting_list (prison_code, activity_id, prisoner_number, status) VALUES (?, ?, ?, ?)`,
		prisonCode, activityID, prisonerNumber, status)
}
