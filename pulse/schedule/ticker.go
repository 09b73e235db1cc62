package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/logger"
)

// JobStarter starts a lifecycle job of the given type for a calendar date.
// The ticker knows job types only by name.
type JobStarter interface {
	StartScheduled(ctx context.Context, jobType string, date time.Time) (int64, error)
}

// Ticker checks the schedule periodically and starts due jobs
type Ticker struct {
	store    *Store
	starter  JobStarter
	interval time.Duration
	location *time.Location
	clock    func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pulseLog *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	jobsStarted     int64
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval time.Duration  // How often to check the schedule
	Location *time.Location // Zone of the run times and of "today"
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 30 * time.Second,
		Location: time.UTC,
	}
}

// NewTicker creates a ticker bound to ctx
func NewTicker(ctx context.Context, store *Store, starter JobStarter, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Ticker{
		store:    store,
		starter:  starter,
		interval: cfg.Interval,
		location: cfg.Location,
		clock:    time.Now,
		ctx:      tickerCtx,
		cancel:   cancel,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval, "zone", t.location.String())
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Pulse ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.Tick(t.ctx, t.clock()); err != nil {
				t.pulseLog.Warnw("Pulse tick error", "error", err, "tick", t.ticks())
			}
		}
	}
}

// Tick starts every job due at now. A job whose start fails is retried on the next tick.
func (t *Ticker) Tick(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	t.mu.Unlock()

	local := now.In(t.location)
	today := util.DateOf(local)

	entries, err := t.store.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list schedules")
	}

	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.DueAt(local, today) {
			continue
		}
		if err := t.startEntry(ctx, e, today); err != nil {
			t.pulseLog.Errorw("Failed to start scheduled job", logger.FieldJobType, e.JobType, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Ticker) startEntry(ctx context.Context, e *Entry, today time.Time) error {
	claimed, err := t.store.ClaimRun(ctx, e.JobType, today)
	if err != nil {
		return err
	}
	if !claimed {
		// Another ticker started it
		return nil
	}

	jobID, err := t.starter.StartScheduled(ctx, e.JobType, today)
	if err != nil {
		// Release the claim so the next tick retries
		if resetErr := t.store.ReleaseRun(ctx, e.JobType, e.LastRunDate); resetErr != nil {
			t.pulseLog.Warnw("Failed to release schedule claim", logger.FieldJobType, e.JobType, "error", resetErr)
		}
		return errors.Wrapf(err, "failed to start %s", e.JobType)
	}

	if err := t.store.RecordJob(ctx, e.JobType, jobID); err != nil {
		t.pulseLog.Warnw("Failed to record scheduled job", logger.FieldJobType, e.JobType, "error", err)
	}

	t.mu.Lock()
	t.jobsStarted++
	t.mu.Unlock()

	t.pulseLog.Infow("Pulse started scheduled job",
		logger.FieldJobType, e.JobType,
		logger.FieldJobID, jobID,
		logger.FieldDate, util.FormatDate(today),
		"run_at", e.RunAt)
	return nil
}

func (t *Ticker) ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticksSinceStart
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"jobs_started":      t.jobsStarted,
		"interval":          t.interval,
	}
}
