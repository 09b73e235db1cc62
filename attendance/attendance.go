// Package attendance creates the daily attendance register and expires what was never marked.
package attendance

import (
	"time"

	"github.com/prisonops/lifecycle/allocation"
)

// Status of an attendance
type Status string

const (
	Waiting   Status = "WAITING"
	Completed Status = "COMPLETED"
)

// Reasons recorded when the lifecycle completes an attendance itself
const (
	ReasonSuspended     = "SUSPENDED"
	ReasonAutoSuspended = "AUTO_SUSPENDED"
)

// Attendance is one prisoner's expected presence at one session.
// There is at most one per (scheduled instance, prisoner).
type Attendance struct {
	ID                  int64      `json:"id" yaml:"id"`
	ScheduledInstanceID int64      `json:"scheduledInstanceId" yaml:"scheduled_instance_id"`
	PrisonerNumber      string     `json:"prisonerNumber" yaml:"prisoner_number"`
	Status              Status     `json:"status" yaml:"status"`
	Reason              string     `json:"attendanceReason,omitempty" yaml:"attendance_reason,omitempty"`
	IssuePayment        bool       `json:"issuePayment" yaml:"issue_payment"`
	RecordedBy          string     `json:"recordedBy,omitempty" yaml:"recorded_by,omitempty"`
	RecordedTime        *time.Time `json:"recordedTime,omitempty" yaml:"recorded_time,omitempty"`
}

// ScheduledInstance is one session of an activity schedule.
type ScheduledInstance struct {
	ID                 int64     `json:"id" yaml:"id"`
	ActivityScheduleID int64     `json:"activityScheduleId" yaml:"activity_schedule_id"`
	SessionDate        time.Time `json:"sessionDate" yaml:"session_date"`
	StartTime          string    `json:"startTime" yaml:"start_time"`
	EndTime            string    `json:"endTime" yaml:"end_time"`
	Cancelled          bool      `json:"cancelled" yaml:"cancelled"`
	AttendanceRequired bool      `json:"attendanceRequired" yaml:"attendance_required"`
}

// Allocated is an allocation as seen from a session: who, and in what state.
type Allocated struct {
	AllocationID   int64
	PrisonerNumber string
	Status         allocation.Status
}

// attendingStatuses are the allocation states that get an attendance row
var attendingStatuses = []allocation.Status{
	allocation.Active,
	allocation.Suspended,
	allocation.SuspendedWithPay,
	allocation.AutoSuspended,
}

// newAttendance builds the attendance an allocation in state s gets for a session.
func newAttendance(instanceID int64, prisonerNumber string, s allocation.Status, actor string, at time.Time) *Attendance {
	att := &Attendance{ScheduledInstanceID: instanceID, PrisonerNumber: prisonerNumber, Status: Waiting}
	if s.IsSuspended() {
		att.Status = Completed
		att.Reason = ReasonSuspended
		att.IssuePayment = s == allocation.SuspendedWithPay
		att.RecordedBy = actor
		att.RecordedTime = &at
	}
	return att
}
