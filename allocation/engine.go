package allocation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/events"
	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/logger"
)

// Waiting list decline reasons
const (
	DeclinedActivityEnded   = "Activity ended"
	DeclinedAllocationEnded = "Allocation ended"
)

// AttendanceSuspender keeps a prisoner's future attendances in step with their allocations.
type AttendanceSuspender interface {
	SuspendFuture(ctx context.Context, prisonCode, prisonerNumber string, from time.Time) (int, error)
	ResetFuture(ctx context.Context, prisonCode, prisonerNumber string, scheduleIDs []int64, from time.Time) (int, error)
}

// Engine applies the allocation lifecycle for one prison at a time.
type Engine struct {
	repo        Repository
	attendances AttendanceSuspender
	publisher   events.Publisher
	actor       string
	now         func() time.Time
	log         *zap.SugaredLogger
}

// NewEngine creates an allocation engine. actor is recorded on changes made by the jobs.
func NewEngine(repo Repository, attendances AttendanceSuspender, publisher events.Publisher, actor string, log *zap.SugaredLogger) *Engine {
	if actor == "" {
		actor = am.DefaultSystemActor
	}
	return &Engine{
		repo:        repo,
		attendances: attendances,
		publisher:   publisher,
		actor:       actor,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		log:         log.Named("allocation"),
	}
}

func (e *Engine) save(ctx context.Context, a *Allocation, from Status, result *batch.Result) bool {
	if err := e.repo.Save(ctx, a); err != nil {
		result.Fail(errors.Wrapf(err, "allocation %d", a.ID))
		return false
	}
	result.Changed++
	logger.FromContext(ctx, e.log).Infow("Allocation status changed",
		logger.FieldAllocationID, a.ID, logger.FieldPrisoner, a.PrisonerNumber,
		logger.FieldFrom, from, logger.FieldTo, a.Status)
	return true
}

// StartSuspensions suspends active allocations whose planned suspension covers today.
func (e *Engine) StartSuspensions(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error) {
	var result batch.Result

	candidates, err := e.repo.FindByPrisonCodeAndStatus(ctx, prisonCode, Active)
	if err != nil {
		return result, err
	}

	for _, a := range candidates {
		result.Examined++
		ps := a.PlannedSuspension
		if !ps.ActiveOn(today) {
			continue
		}
		if err := a.Suspend(e.now(), ps.PlannedBy, ReasonPlannedSuspension, ps.Paid); err != nil {
			result.Fail(err)
			continue
		}
		e.save(ctx, a, Active, &result)
	}
	return result, nil
}

// EndSuspensions reactivates suspended allocations whose planned suspension has ended,
// and clears the plan.
func (e *Engine) EndSuspensions(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error) {
	var result batch.Result

	candidates, err := e.repo.FindByPrisonCodeAndStatus(ctx, prisonCode, Suspended, SuspendedWithPay)
	if err != nil {
		return result, err
	}

	for _, a := range candidates {
		result.Examined++
		if !a.PlannedSuspension.EndedBy(today) {
			continue
		}
		from := a.Status
		if err := a.Activate(); err != nil {
			result.Fail(err)
			continue
		}
		a.PlannedSuspension = nil
		e.save(ctx, a, from, &result)
	}
	return result, nil
}

// AutoSuspend suspends every active allocation of a prisoner who has left the prison
// temporarily, and completes their future attendances as suspended.
func (e *Engine) AutoSuspend(ctx context.Context, prisonCode, prisonerNumber string) (batch.Result, error) {
	var result batch.Result
	now := e.now()

	candidates, err := e.repo.FindByPrisoner(ctx, prisonCode, prisonerNumber, Active)
	if err != nil {
		return result, err
	}

	for _, a := range candidates {
		result.Examined++
		if err := a.AutoSuspend(now, e.actor, ReasonTemporaryAbsence); err != nil {
			result.Fail(err)
			continue
		}
		e.save(ctx, a, Active, &result)
	}

	if result.Changed > 0 && e.attendances != nil {
		if _, err := e.attendances.SuspendFuture(ctx, prisonCode, prisonerNumber, now); err != nil {
			result.Fail(errors.Wrapf(err, "failed to suspend future attendances of %s", prisonerNumber))
		}
	}
	return result, nil
}

// ReceiveBack ends the auto-suspension of a returning prisoner. Allocations inside a
// planned suspension window go back to it; the rest become active and their future
// attendances are reset.
func (e *Engine) ReceiveBack(ctx context.Context, prisonCode, prisonerNumber string, today time.Time) (batch.Result, error) {
	var result batch.Result
	now := e.now()

	candidates, err := e.repo.FindByPrisoner(ctx, prisonCode, prisonerNumber, AutoSuspended)
	if err != nil {
		return result, err
	}

	var reactivated []int64
	for _, a := range candidates {
		result.Examined++
		if ps := a.PlannedSuspension; ps.ActiveOn(today) {
			err = a.Suspend(now, ps.PlannedBy, ReasonPlannedSuspension, ps.Paid)
		} else {
			err = a.Activate()
		}
		if err != nil {
			result.Fail(err)
			continue
		}
		if e.save(ctx, a, AutoSuspended, &result) && a.Status == Active {
			reactivated = append(reactivated, a.ActivityScheduleID)
		}
	}

	if len(reactivated) > 0 && e.attendances != nil {
		if _, err := e.attendances.ResetFuture(ctx, prisonCode, prisonerNumber, reactivated, now); err != nil {
			result.Fail(errors.Wrapf(err, "failed to reset future attendances of %s", prisonerNumber))
		}
	}
	return result, nil
}

// ending is why and from when an allocation ends
type ending struct {
	date      time.Time
	reason    string
	by        string
	declineBy string // prisoner whose applications are declined, empty for everyone
	declined  string
}

// endingOf picks the earliest applicable ending of a on today. Equal dates prefer
// the planned deallocation.
func (e *Engine) endingOf(a *Allocation, schedule *Schedule, today time.Time) *ending {
	var found *ending

	if pd := a.PlannedDeallocation; pd != nil && !pd.PlannedDate.After(today) {
		found = &ending{date: pd.PlannedDate, reason: pd.Reason, by: pd.PlannedBy,
			declineBy: a.PrisonerNumber, declined: DeclinedAllocationEnded}
	}

	consider := func(end *time.Time, declineBy, declined string) {
		if end == nil || !end.Before(today) {
			return
		}
		if found != nil && !end.Before(found.date) {
			return
		}
		found = &ending{date: *end, reason: ReasonEnded, by: e.actor, declineBy: declineBy, declined: declined}
	}
	if schedule != nil {
		consider(schedule.EndDate, "", DeclinedActivityEnded)
	}
	consider(a.EndDate, a.PrisonerNumber, DeclinedAllocationEnded)

	return found
}

// DeallocateEnding ends allocations whose schedule or own end date has passed, or whose
// planned deallocation is due, declines the affected waiting list applications and
// publishes an amendment per ended allocation.
func (e *Engine) DeallocateEnding(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error) {
	var result batch.Result
	now := e.now()

	candidates, err := e.repo.FindByPrisonCodeAndStatus(ctx, prisonCode, Pending, Active, Suspended, SuspendedWithPay)
	if err != nil {
		return result, err
	}

	schedules := map[int64]*Schedule{}
	declinedActivities := map[int64]bool{}

	for _, a := range candidates {
		result.Examined++

		schedule, ok := schedules[a.ActivityScheduleID]
		if !ok {
			if schedule, err = e.repo.GetSchedule(ctx, a.ActivityScheduleID); err != nil {
				result.Fail(errors.Wrapf(err, "allocation %d", a.ID))
				continue
			}
			schedules[a.ActivityScheduleID] = schedule
		}

		end := e.endingOf(a, schedule, today)
		if end == nil {
			continue
		}

		from := a.Status
		if err := a.Deallocate(now, end.reason, end.by); err != nil {
			result.Fail(err)
			continue
		}
		if !e.save(ctx, a, from, &result) {
			continue
		}

		if end.declineBy != "" || !declinedActivities[a.ActivityID] {
			n, err := e.repo.DeclineWaitingList(ctx, a.ActivityID, end.declineBy, end.declined, e.actor, now)
			if err != nil {
				result.Fail(errors.Wrapf(err, "allocation %d", a.ID))
			} else if n > 0 {
				logger.FromContext(ctx, e.log).Infow("Waiting list declined",
					logger.FieldAllocationID, a.ID, logger.FieldCount, n, "reason", end.declined)
			}
			if end.declineBy == "" {
				declinedActivities[a.ActivityID] = true
			}
		}

		if err := e.publisher.Send(ctx, events.AllocationAmended, a.ID); err != nil {
			logger.FromContext(ctx, e.log).Warnw("Failed to publish allocation amended",
				logger.FieldAllocationID, a.ID, logger.FieldError, err)
			result.Fail(errors.Wrapf(err, "allocation %d", a.ID))
		}
	}
	return result, nil
}
