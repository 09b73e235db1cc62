package job

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/logger"
	"github.com/prisonops/lifecycle/pulse/async"
	"github.com/prisonops/lifecycle/rollout"
)

// DefaultDispatchConcurrency bounds parallel sends when none is configured
const DefaultDispatchConcurrency = 4

// MessageSender delivers one message to the handler registered for handlerName.
// *async.Queue implements it.
type MessageSender interface {
	Send(ctx context.Context, handlerName, prisonCode string, payload []byte) (*async.Message, error)
}

// Counter sets a job's expected sub-task count. *Store implements it.
type Counter interface {
	InitialiseCounts(ctx context.Context, jobID int64, total int) error
}

// EventOptions carries the payload fields of attendance jobs.
type EventOptions struct {
	Date           time.Time
	ExpireUnmarked bool
}

// Dispatcher fans a job out as one message per live prison.
type Dispatcher struct {
	prisons     rollout.Registry
	counter     Counter
	sender      MessageSender
	concurrency int
	log         *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. concurrency <= 0 uses DefaultDispatchConcurrency.
func NewDispatcher(prisons rollout.Registry, counter Counter, sender MessageSender, concurrency int, log *zap.SugaredLogger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}
	return &Dispatcher{
		prisons:     prisons,
		counter:     counter,
		sender:      sender,
		concurrency: concurrency,
		log:         logger.AddJobSymbol(log.Named("dispatch")),
	}
}

// SendEvents initialises the job's counter to the number of eligible prisons and sends
// each of them a message. A prison is eligible when it is live and its activities
// rollout date is not after today, the same rule the handlers check.
// Every send is attempted; failures are joined.
func (d *Dispatcher) SendEvents(ctx context.Context, j *Job, opts EventOptions) error {
	prisons, err := d.prisons.GetRolloutPrisons(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to get rollout prisons for job %d", j.ID)
	}

	today := d.prisons.Today()
	var targets []string
	for _, p := range prisons {
		if p.EligibleOn(today) {
			targets = append(targets, p.Code)
		}
	}

	if err := d.counter.InitialiseCounts(ctx, j.ID, len(targets)); err != nil {
		return err
	}
	if len(targets) == 0 {
		d.log.Infow("No live prisons, job complete", logger.FieldJobID, j.ID, logger.FieldJobType, j.Type)
		return nil
	}

	// The group only bounds concurrent sends. Its goroutines never return an error
	// so one failed prison cannot stop the others; failures are collected in errs.
	var (
		limiter errgroup.Group
		mu      sync.Mutex
		errs    []error
	)
	limiter.SetLimit(d.concurrency)

	for _, code := range targets {
		limiter.Go(func() error {
			if err := d.send(ctx, j, code, opts); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	limiter.Wait()

	if len(errs) > 0 {
		d.log.Errorw("Job dispatched with failures",
			logger.FieldJobID, j.ID, logger.FieldJobType, j.Type,
			logger.FieldTotalCount, len(targets), "failed", len(errs))
		return errors.Wrapf(errors.Join(errs...), "failed to send %d of %d %s messages", len(errs), len(targets), j.Type)
	}

	d.log.Infow("Job dispatched",
		logger.FieldJobID, j.ID, logger.FieldJobType, j.Type, logger.FieldTotalCount, len(targets))
	return nil
}

func (d *Dispatcher) send(ctx context.Context, j *Job, prisonCode string, opts EventOptions) error {
	msg := JobEventMessage{JobID: j.ID, JobType: j.Type, Payload: PrisonCodeEvent{PrisonCode: prisonCode}}
	if j.Type.usesAttendanceEvent() {
		msg.Payload = AttendanceEvent{PrisonCode: prisonCode, Date: opts.Date, ExpireUnmarked: opts.ExpireUnmarked}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "failed to encode message for %s", prisonCode)
	}
	if _, err := d.sender.Send(ctx, string(j.Type), prisonCode, payload); err != nil {
		return errors.Wrapf(err, "failed to send %s message to %s", j.Type, prisonCode)
	}
	return nil
}
