// Package app assembles the lifecycle service from its configuration: database, stores,
// engines, job service, worker pool and scheduler.
package app

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/allocation"
	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/attendance"
	"github.com/prisonops/lifecycle/db"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/events"
	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/lifecycle"
	"github.com/prisonops/lifecycle/monitoring"
	"github.com/prisonops/lifecycle/pulse/async"
	"github.com/prisonops/lifecycle/pulse/schedule"
	"github.com/prisonops/lifecycle/rollout"
)

// App is a wired lifecycle service
type App struct {
	Config      *am.Config
	DB          *sql.DB
	Rollout     *rollout.Store
	Jobs        *job.Service
	Allocations *allocation.Engine
	Attendances *attendance.Engine
	AllocStore  *allocation.Store
	Outbox      *events.Outbox
	Monitor     monitoring.Monitor
	Pool        *async.WorkerPool
	Schedules   *schedule.Store

	ticker        *schedule.Ticker
	tickerRunning bool
	flush         func()
	ownsDB        bool
	log           *zap.SugaredLogger
	cancel        context.CancelFunc
}

// Open opens and migrates the configured database and builds the service on it.
func Open(ctx context.Context, cfg *am.Config, log *zap.SugaredLogger) (*App, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg, database, log)
	if err != nil {
		database.Close()
		return nil, err
	}
	a.ownsDB = true
	return a, nil
}

// New builds the service on an already migrated database.
func New(ctx context.Context, cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) (*App, error) {
	monitor, flush, err := monitoring.New(cfg.Monitoring, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up monitoring")
	}

	loc := cfg.Location()
	actor := cfg.Jobs.SystemActor
	if actor == "" {
		actor = am.DefaultSystemActor
	}

	poolCtx, cancel := context.WithCancel(ctx)
	pool := async.NewWorkerPool(poolCtx, database, async.PoolConfigFromAm(cfg), log)

	a := &App{
		Config:     cfg,
		DB:         database,
		Rollout:    rollout.NewStore(database, loc),
		AllocStore: allocation.NewStore(database),
		Outbox:     events.NewOutbox(database, log),
		Monitor:    monitor,
		Pool:       pool,
		Schedules:  schedule.NewStore(database),
		flush:      flush,
		log:        log,
		cancel:     cancel,
	}

	a.Attendances = attendance.NewEngine(attendance.NewStore(database), a.Outbox, actor, loc, log)
	a.Allocations = allocation.NewEngine(a.AllocStore, a.Attendances, a.Outbox, actor, log)

	jobStore := job.NewStore(database)
	dispatcher := job.NewDispatcher(a.Rollout, jobStore, pool.Queue(), cfg.Jobs.DispatchConcurrency, log)
	a.Jobs = job.NewService(jobStore, dispatcher, loc, log)

	lifecycle.Register(pool.Registry(), lifecycle.Deps{
		Rollout:     a.Rollout,
		Counter:     jobStore,
		Starter:     a.Jobs,
		Monitor:     monitor,
		Allocations: a.Allocations,
		Attendances: a.Attendances,
		Location:    loc,
		Log:         log,
	})

	a.ticker = schedule.NewTicker(poolCtx, a.Schedules, a, schedule.TickerConfig{
		Interval: time.Duration(cfg.Pulse.TickerIntervalSeconds) * time.Second,
		Location: loc,
	}, log)

	return a, nil
}

// StartScheduled starts a job for the scheduler. Attendance creation carries the
// configured expire-unmarked flag so the expiry job follows it.
func (a *App) StartScheduled(ctx context.Context, jobType string, date time.Time) (int64, error) {
	t, err := job.ParseJobType(jobType)
	if err != nil {
		return 0, err
	}
	opts := job.StartOptions{Date: date}
	if t == job.AttendanceCreate {
		opts.ExpireUnmarked = a.Config.Jobs.ExpireUnmarked
	}
	j, err := a.Jobs.Start(ctx, t, opts)
	if j == nil {
		return 0, err
	}
	return j.ID, err
}

var _ schedule.JobStarter = (*App)(nil)

// DefaultRunTimes are the configured daily run times keyed by job type
func (a *App) DefaultRunTimes() map[string]string {
	s := a.Config.Jobs.Schedule
	return map[string]string{
		string(job.AttendanceCreate): s.AttendanceCreate,
		string(job.DeallocateEnding): s.DeallocateEnding,
		string(job.StartSuspensions): s.StartSuspensions,
	}
}

// Start seeds the schedule and starts the workers and, unless the tick interval is
// zero, the scheduler.
func (a *App) Start(ctx context.Context) error {
	if err := a.Schedules.EnsureDefaults(ctx, a.DefaultRunTimes()); err != nil {
		return err
	}
	a.Pool.Start()
	if a.Config.Pulse.TickerIntervalSeconds > 0 {
		a.ticker.Start()
		a.tickerRunning = true
	}
	a.log.Infow("Lifecycle service started",
		"workers", a.Pool.Workers(),
		"scheduler", a.tickerRunning,
		"zone", a.Config.Location().String())
	return nil
}

// Stop stops the scheduler then the workers, letting running messages finish
func (a *App) Stop() {
	if a.tickerRunning {
		a.ticker.Stop()
		a.tickerRunning = false
	}
	a.Pool.Stop()
}

// Close stops everything, flushes captured errors and closes the database if Open opened it.
func (a *App) Close() error {
	a.Stop()
	a.cancel()
	if a.flush != nil {
		a.flush()
	}
	if a.ownsDB {
		return errors.Wrap(a.DB.Close(), "failed to close database")
	}
	return nil
}
