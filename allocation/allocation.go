// Package allocation holds the allocation lifecycle: a prisoner's place on an activity
// schedule moving between active, suspended and ended.
package allocation

import (
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// Status of an allocation. ENDED is terminal.
type Status string

const (
	Pending          Status = "PENDING"
	Active           Status = "ACTIVE"
	Suspended        Status = "SUSPENDED"
	SuspendedWithPay Status = "SUSPENDED_WITH_PAY"
	AutoSuspended    Status = "AUTO_SUSPENDED"
	Ended            Status = "ENDED"
)

// IsSuspended reports whether s is one of the suspended states
func (s Status) IsSuspended() bool {
	return s == Suspended || s == SuspendedWithPay || s == AutoSuspended
}

// Deallocation reasons recorded by the lifecycle itself
const (
	ReasonEnded = "ENDED"
)

// Suspension reasons recorded by the lifecycle itself
const (
	ReasonPlannedSuspension = "Planned suspension"
	ReasonTemporaryAbsence  = "Temporarily released or transferred"
)

// PlannedSuspension is a suspension window booked in advance.
type PlannedSuspension struct {
	StartDate time.Time  `json:"startDate" yaml:"start_date"`
	EndDate   *time.Time `json:"endDate,omitempty" yaml:"end_date,omitempty"`
	Paid      bool       `json:"paid" yaml:"paid"`
	PlannedBy string     `json:"plannedBy" yaml:"planned_by"`
}

// ActiveOn reports whether the window covers date. The end date is exclusive.
func (p *PlannedSuspension) ActiveOn(date time.Time) bool {
	if p == nil || p.StartDate.After(date) {
		return false
	}
	return p.EndDate == nil || p.EndDate.After(date)
}

// EndedBy reports whether the window has an end on or before date.
func (p *PlannedSuspension) EndedBy(date time.Time) bool {
	return p != nil && p.EndDate != nil && !p.EndDate.After(date)
}

// PlannedDeallocation is an end booked in advance.
type PlannedDeallocation struct {
	PlannedDate time.Time `json:"plannedDate" yaml:"planned_date"`
	Reason      string    `json:"reason" yaml:"reason"`
	PlannedBy   string    `json:"plannedBy" yaml:"planned_by"`
}

// Allocation is a prisoner's place on an activity schedule.
type Allocation struct {
	ID                 int64      `json:"id" yaml:"id"`
	PrisonCode         string     `json:"prisonCode" yaml:"prison_code"`
	PrisonerNumber     string     `json:"prisonerNumber" yaml:"prisoner_number"`
	ActivityScheduleID int64      `json:"activityScheduleId" yaml:"activity_schedule_id"`
	ActivityID         int64      `json:"activityId" yaml:"activity_id"`
	Status             Status     `json:"status" yaml:"status"`
	StartDate          time.Time  `json:"startDate" yaml:"start_date"`
	EndDate            *time.Time `json:"endDate,omitempty" yaml:"end_date,omitempty"`
	AllocatedTime      time.Time  `json:"allocatedTime" yaml:"allocated_time"`
	AllocatedBy        string     `json:"allocatedBy" yaml:"allocated_by"`

	DeallocatedTime   *time.Time `json:"deallocatedTime,omitempty" yaml:"deallocated_time,omitempty"`
	DeallocatedReason string     `json:"deallocatedReason,omitempty" yaml:"deallocated_reason,omitempty"`
	DeallocatedBy     string     `json:"deallocatedBy,omitempty" yaml:"deallocated_by,omitempty"`

	SuspendedTime   *time.Time `json:"suspendedTime,omitempty" yaml:"suspended_time,omitempty"`
	SuspendedReason string     `json:"suspendedReason,omitempty" yaml:"suspended_reason,omitempty"`
	SuspendedBy     string     `json:"suspendedBy,omitempty" yaml:"suspended_by,omitempty"`

	PlannedSuspension   *PlannedSuspension   `json:"plannedSuspension,omitempty" yaml:"planned_suspension,omitempty"`
	PlannedDeallocation *PlannedDeallocation `json:"plannedDeallocation,omitempty" yaml:"planned_deallocation,omitempty"`
}

func (a *Allocation) transition(to Status, allowed ...Status) error {
	for _, from := range allowed {
		if a.Status == from {
			a.Status = to
			return nil
		}
	}
	return errors.NewConflictError("allocation %d cannot move from %s to %s", a.ID, a.Status, to)
}

// Suspend moves an active or auto-suspended allocation into its planned suspension.
func (a *Allocation) Suspend(at time.Time, by, reason string, paid bool) error {
	to := Suspended
	if paid {
		to = SuspendedWithPay
	}
	if err := a.transition(to, Active, AutoSuspended); err != nil {
		return err
	}
	a.SuspendedTime, a.SuspendedBy, a.SuspendedReason = &at, by, reason
	return nil
}

// AutoSuspend suspends an active allocation while the prisoner is away.
func (a *Allocation) AutoSuspend(at time.Time, by, reason string) error {
	if err := a.transition(AutoSuspended, Active); err != nil {
		return err
	}
	a.SuspendedTime, a.SuspendedBy, a.SuspendedReason = &at, by, reason
	return nil
}

// Activate ends any suspension.
func (a *Allocation) Activate() error {
	if err := a.transition(Active, Suspended, SuspendedWithPay, AutoSuspended); err != nil {
		return err
	}
	a.SuspendedTime, a.SuspendedBy, a.SuspendedReason = nil, "", ""
	return nil
}

// Deallocate ends the allocation. Auto-suspended allocations are ended on return instead.
func (a *Allocation) Deallocate(at time.Time, reason, by string) error {
	if err := a.transition(Ended, Pending, Active, Suspended, SuspendedWithPay); err != nil {
		return err
	}
	a.DeallocatedTime, a.DeallocatedReason, a.DeallocatedBy = &at, reason, by
	return nil
}

// Schedule is the part of an activity schedule the lifecycle needs.
type Schedule struct {
	ID         int64      `json:"id" yaml:"id"`
	ActivityID int64      `json:"activityId" yaml:"activity_id"`
	PrisonCode string     `json:"prisonCode" yaml:"prison_code"`
	StartDate  time.Time  `json:"startDate" yaml:"start_date"`
	EndDate    *time.Time `json:"endDate,omitempty" yaml:"end_date,omitempty"`
}

// WaitingListStatus of an application to join an activity
type WaitingListStatus string

const (
	WaitingListPending   WaitingListStatus = "PENDING"
	WaitingListApproved  WaitingListStatus = "APPROVED"
	WaitingListDeclined  WaitingListStatus = "DECLINED"
	WaitingListAllocated WaitingListStatus = "ALLOCATED"
	WaitingListRemoved   WaitingListStatus = "REMOVED"
	WaitingListWithdrawn WaitingListStatus = "WITHDRAWN"
)

// WaitingListApplication is a prisoner waiting for a place on an activity
type WaitingListApplication struct {
	ID             int64             `json:"id" yaml:"id"`
	PrisonCode     string            `json:"prisonCode" yaml:"prison_code"`
	ActivityID     int64             `json:"activityId" yaml:"activity_id"`
	PrisonerNumber string            `json:"prisonerNumber" yaml:"prisoner_number"`
	Status         WaitingListStatus `json:"status" yaml:"status"`
	DeclinedReason string            `json:"declinedReason,omitempty" yaml:"declined_reason,omitempty"`
	UpdatedBy      string            `json:"updatedBy,omitempty" yaml:"updated_by,omitempty"`
}
