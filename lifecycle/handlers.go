package lifecycle

import (
	"context"
	"time"

	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/logger"
	"github.com/prisonops/lifecycle/pulse/async"
)

// Messages captured when a prison's change fails
const (
	StartSuspensionsFailed = "An error occurred while suspending allocations due to be suspended today"
	EndSuspensionsFailed   = "An error occurred while unsuspending allocations due to be unsuspended today"
	DeallocateEndingFailed = "An error occurred while deallocating allocations due to end"
	AttendanceCreateFailed = "An error occurred while creating attendances"
	AttendanceExpireFailed = "An error occurred while expiring unmarked attendances"
)

// NewHandlers builds one handler per job type
func NewHandlers(deps Deps) []*Handler {
	d := &deps
	log := logger.AddJobSymbol(d.Log.Named("lifecycle"))

	always := func(job.Event) bool { return true }
	expireRequested := func(e job.Event) bool {
		ae, ok := e.(job.AttendanceEvent)
		return ok && ae.ExpireUnmarked
	}

	return []*Handler{
		{
			jobType:        job.StartSuspensions,
			monitorMessage: StartSuspensionsFailed,
			apply: func(ctx context.Context, e job.Event, today time.Time) (batch.Result, error) {
				return d.Allocations.StartSuspensions(ctx, e.Prison(), today)
			},
			next: &successor{jobType: job.EndSuspensions, when: always},
			deps: d,
			log:  log,
		},
		{
			jobType:        job.EndSuspensions,
			monitorMessage: EndSuspensionsFailed,
			apply: func(ctx context.Context, e job.Event, today time.Time) (batch.Result, error) {
				return d.Allocations.EndSuspensions(ctx, e.Prison(), today)
			},
			deps: d,
			log:  log,
		},
		{
			jobType:        job.DeallocateEnding,
			monitorMessage: DeallocateEndingFailed,
			apply: func(ctx context.Context, e job.Event, today time.Time) (batch.Result, error) {
				return d.Allocations.DeallocateEnding(ctx, e.Prison(), today)
			},
			deps: d,
			log:  log,
		},
		{
			jobType:        job.AttendanceCreate,
			monitorMessage: AttendanceCreateFailed,
			apply: func(ctx context.Context, e job.Event, today time.Time) (batch.Result, error) {
				date := today
				if ae, ok := e.(job.AttendanceEvent); ok && !ae.Date.IsZero() {
					date = ae.Date
				}
				return d.Attendances.CreateAttendances(ctx, e.Prison(), date)
			},
			next: &successor{jobType: job.AttendanceExpire, when: expireRequested},
			deps: d,
			log:  log,
		},
		{
			jobType:        job.AttendanceExpire,
			monitorMessage: AttendanceExpireFailed,
			apply: func(ctx context.Context, e job.Event, today time.Time) (batch.Result, error) {
				return d.Attendances.ExpireUnmarked(ctx, e.Prison(), today.AddDate(0, 0, -1))
			},
			deps: d,
			log:  log,
		},
	}
}

// Register adds every lifecycle handler to the registry
func Register(registry *async.HandlerRegistry, deps Deps) {
	for _, h := range NewHandlers(deps) {
		registry.Register(h)
	}
}
