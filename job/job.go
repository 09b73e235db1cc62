// Package job tracks fan-out lifecycle jobs: one logical job, one sub-task per prison,
// completed when every prison has reported back.
package job

import (
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// JobType identifies a lifecycle job. The set is closed.
type JobType string

const (
	AttendanceCreate JobType = "ATTENDANCE_CREATE"
	AttendanceExpire JobType = "ATTENDANCE_EXPIRE"
	DeallocateEnding JobType = "DEALLOCATE_ENDING"
	StartSuspensions JobType = "START_SUSPENSIONS"
	EndSuspensions   JobType = "END_SUSPENSIONS"
)

// AllTypes lists every job type in a stable order.
var AllTypes = []JobType{
	AttendanceCreate,
	AttendanceExpire,
	DeallocateEnding,
	StartSuspensions,
	EndSuspensions,
}

// ParseJobType validates a job type name.
func ParseJobType(s string) (JobType, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown job type %q", s)
}

func (t JobType) String() string { return string(t) }

// usesAttendanceEvent reports whether messages for t carry an AttendanceEvent.
func (t JobType) usesAttendanceEvent() bool {
	return t == AttendanceCreate
}

// Job is one logical run of a JobType across all live prisons.
type Job struct {
	ID                int64      `json:"id" yaml:"id"`
	Type              JobType    `json:"jobType" yaml:"job_type"`
	StartedAt         time.Time  `json:"startedAt" yaml:"started_at"`
	EndedAt           *time.Time `json:"endedAt,omitempty" yaml:"ended_at,omitempty"`
	TotalSubTasks     int        `json:"totalSubTasks" yaml:"total_sub_tasks"`
	CompletedSubTasks int        `json:"completedSubTasks" yaml:"completed_sub_tasks"`
	Successful        bool       `json:"successful" yaml:"successful"`
}
