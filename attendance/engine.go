package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/allocation"
	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/events"
	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/logger"
)

// Engine applies the attendance lifecycle for one prison at a time.
type Engine struct {
	repo      Repository
	publisher events.Publisher
	actor     string
	location  *time.Location
	now       func() time.Time
	log       *zap.SugaredLogger
}

var _ allocation.AttendanceSuspender = (*Engine)(nil)

// NewEngine creates an attendance engine. Session times are wall-clock times in loc.
func NewEngine(repo Repository, publisher events.Publisher, actor string, loc *time.Location, log *zap.SugaredLogger) *Engine {
	if actor == "" {
		actor = am.DefaultSystemActor
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		repo:      repo,
		publisher: publisher,
		actor:     actor,
		location:  loc,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		log:       log.Named("attendance"),
	}
}

func (e *Engine) publish(ctx context.Context, eventType events.Type, id int64, result *batch.Result) {
	if err := e.publisher.Send(ctx, eventType, id); err != nil {
		logger.FromContext(ctx, e.log).Warnw("Failed to publish attendance event",
			logger.FieldAttendanceID, id, "event", eventType.WireName(), logger.FieldError, err)
		result.Fail(errors.Wrapf(err, "attendance %d", id))
	}
}

// CreateAttendances creates the register for the prison's sessions on date. Allocations
// that are suspended get a completed attendance straight away. Existing rows are left alone.
func (e *Engine) CreateAttendances(ctx context.Context, prisonCode string, date time.Time) (batch.Result, error) {
	var result batch.Result
	now := e.now()

	instances, err := e.repo.InstancesOn(ctx, prisonCode, date)
	if err != nil {
		return result, err
	}

	allocatedBySchedule := map[int64][]Allocated{}
	for _, instance := range instances {
		if !instance.AttendanceRequired {
			continue
		}

		allocated, ok := allocatedBySchedule[instance.ActivityScheduleID]
		if !ok {
			if allocated, err = e.repo.AllocatedOn(ctx, instance.ActivityScheduleID, date); err != nil {
				result.Fail(errors.Wrapf(err, "session %d", instance.ID))
				continue
			}
			allocatedBySchedule[instance.ActivityScheduleID] = allocated
		}

		for _, a := range allocated {
			result.Examined++
			exists, err := e.repo.Exists(ctx, instance.ID, a.PrisonerNumber)
			if err != nil {
				result.Fail(errors.Wrapf(err, "session %d", instance.ID))
				continue
			}
			if exists {
				continue
			}

			att := newAttendance(instance.ID, a.PrisonerNumber, a.Status, e.actor, now)
			created, err := e.repo.Insert(ctx, att)
			if err != nil {
				result.Fail(errors.Wrapf(err, "allocation %d", a.AllocationID))
				continue
			}
			if !created {
				continue
			}
			result.Changed++
			e.publish(ctx, events.AttendanceCreated, att.ID, &result)
		}
	}

	logger.FromContext(ctx, e.log).Infow("Attendances created",
		logger.FieldDate, util.FormatDate(date), "sessions", len(instances), logger.FieldCount, result.Changed)
	return result, nil
}

// ExpireUnmarked publishes an expiry for every attendance on date still waiting to be marked.
// Completed attendances are never expired.
func (e *Engine) ExpireUnmarked(ctx context.Context, prisonCode string, date time.Time) (batch.Result, error) {
	var result batch.Result

	waiting, err := e.repo.FindWaitingOnDate(ctx, prisonCode, date)
	if err != nil {
		return result, err
	}

	for _, att := range waiting {
		result.Examined++
		failures := len(result.Failures)
		e.publish(ctx, events.AttendanceExpired, att.ID, &result)
		if len(result.Failures) == failures {
			result.Changed++
		}
	}

	logger.FromContext(ctx, e.log).Infow("Unmarked attendances expired",
		logger.FieldDate, util.FormatDate(date), logger.FieldCount, result.Changed)
	return result, nil
}

func (e *Engine) wallClock(from time.Time) (date, clock string) {
	local := from.In(e.location)
	return local.Format(util.DateLayout), local.Format("15:04")
}

// SuspendFuture completes the prisoner's waiting attendances for sessions after from.
func (e *Engine) SuspendFuture(ctx context.Context, prisonCode, prisonerNumber string, from time.Time) (int, error) {
	date, clock := e.wallClock(from)
	ids, err := e.repo.SuspendFuture(ctx, prisonCode, prisonerNumber, date, clock, e.actor, e.now())
	if err != nil {
		return 0, err
	}

	var result batch.Result
	for _, id := range ids {
		e.publish(ctx, events.AttendanceAmended, id, &result)
	}
	return len(ids), result.Err()
}

// ResetFuture returns the prisoner's suspended attendances for sessions after from,
// on the given schedules, to waiting.
func (e *Engine) ResetFuture(ctx context.Context, prisonCode, prisonerNumber string, scheduleIDs []int64, from time.Time) (int, error) {
	date, clock := e.wallClock(from)
	ids, err := e.repo.ResetFuture(ctx, prisonCode, prisonerNumber, scheduleIDs, date, clock)
	if err != nil {
		return 0, err
	}

	var result batch.Result
	for _, id := range ids {
		e.publish(ctx, events.AttendanceAmended, id, &result)
	}
	return len(ids), result.Err()
}
