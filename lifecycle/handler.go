// Package lifecycle runs one prison's part of each lifecycle job: it checks the prison is
// rolled out, applies the allocation or attendance change, counts the sub-task done and
// starts the follow-on job when the last prison finishes.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/logger"
	"github.com/prisonops/lifecycle/monitoring"
	"github.com/prisonops/lifecycle/pulse/async"
)

// RolloutChecker answers whether a prison is live for activities
type RolloutChecker interface {
	IsActivitiesRolledOutAt(ctx context.Context, prisonCode string) (bool, error)
}

// Counter records completed sub-tasks. *job.Store implements it.
type Counter interface {
	IncrementCount(ctx context.Context, jobID int64, prisonCode string) (bool, error)
}

// Starter starts follow-on jobs. *job.Service implements it.
type Starter interface {
	Start(ctx context.Context, jobType job.JobType, opts job.StartOptions) (*job.Job, error)
}

// AllocationEngine is the allocation side of the lifecycle
type AllocationEngine interface {
	StartSuspensions(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error)
	EndSuspensions(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error)
	DeallocateEnding(ctx context.Context, prisonCode string, today time.Time) (batch.Result, error)
}

// AttendanceEngine is the attendance side of the lifecycle
type AttendanceEngine interface {
	CreateAttendances(ctx context.Context, prisonCode string, date time.Time) (batch.Result, error)
	ExpireUnmarked(ctx context.Context, prisonCode string, date time.Time) (batch.Result, error)
}

// Deps are the collaborators shared by every handler
type Deps struct {
	Rollout     RolloutChecker
	Counter     Counter
	Starter     Starter
	Monitor     monitoring.Monitor
	Allocations AllocationEngine
	Attendances AttendanceEngine
	Location    *time.Location
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

func (d *Deps) today() time.Time {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return util.Today(now(), loc)
}

// successor is the job started once every prison has finished
type successor struct {
	jobType job.JobType
	when    func(job.Event) bool
}

// Handler runs one job type's sub-task for the prison a message is addressed to.
type Handler struct {
	jobType        job.JobType
	monitorMessage string
	apply          func(ctx context.Context, event job.Event, today time.Time) (batch.Result, error)
	next           *successor
	deps           *Deps
	log            *zap.SugaredLogger
}

var _ async.JobHandler = (*Handler)(nil)

// Name is the job type; messages are routed by it
func (h *Handler) Name() string {
	return string(h.jobType)
}

// JobType returns the job type the handler runs
func (h *Handler) JobType() job.JobType {
	return h.jobType
}

// Execute runs the sub-task carried by m.
//
// A prison that is not rolled out fails the message permanently and is not counted,
// so its job never completes. Any other failure of the change itself is captured and
// the sub-task still counts as done.
func (h *Handler) Execute(ctx context.Context, m *async.Message) error {
	msg, err := job.DecodeMessage(m.Payload)
	if err != nil {
		return err
	}
	if msg.JobType != h.jobType {
		return errors.NewInvalidRequestError("%s handler received a %s message", h.jobType, msg.JobType)
	}

	prisonCode := msg.Payload.Prison()
	ctx = logger.WithPrisonCode(logger.WithJobID(ctx, msg.JobID), prisonCode)
	log := logger.FromContext(ctx, h.log)
	start := time.Now()

	rolledOut, err := h.deps.Rollout.IsActivitiesRolledOutAt(ctx, prisonCode)
	if err != nil {
		return errors.Wrapf(err, "failed to check rollout of %s", prisonCode)
	}
	if !rolledOut {
		return errors.NewConfigurationError("Supplied prison %s is not rolled out.", prisonCode)
	}

	result, err := h.apply(ctx, msg.Payload, h.deps.today())
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		h.deps.Monitor.Capture(h.monitorMessage, errors.WithDetail(err, "Prison: "+prisonCode))
	}

	last, err := h.deps.Counter.IncrementCount(ctx, msg.JobID, prisonCode)
	if err != nil {
		return err
	}

	log.Infow("Sub-task complete",
		"examined", result.Examined,
		"changed", result.Changed,
		"failures", len(result.Failures),
		"last", last,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if last && h.next != nil && h.next.when(msg.Payload) {
		h.startNext(ctx, msg.JobID, log)
	}
	return nil
}

// startNext chains the follow-on job. A failure is captured rather than returned:
// a redelivered message would find the job already complete and never chain.
func (h *Handler) startNext(ctx context.Context, jobID int64, log *zap.SugaredLogger) {
	next, err := h.deps.Starter.Start(ctx, h.next.jobType, job.StartOptions{})
	if err != nil {
		h.deps.Monitor.Capture("An error occurred while starting "+string(h.next.jobType),
			errors.WithDetailf(err, "Previous job: %d", jobID))
		return
	}
	log.Infow("Chained job started", logger.FieldJobType, h.next.jobType, "next_job_id", next.ID)
}
