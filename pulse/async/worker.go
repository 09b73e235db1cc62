package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/db"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/sym"
)

// pulseLogger wraps zap.SugaredLogger with Pulse-specific levels:
// Starting (✿) logs at DEBUG, Closing (❀) at WARN, Pulse at INFO.
type pulseLogger struct {
	*zap.SugaredLogger
}

func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often an idle worker checks the queue
	StopTimeout  time.Duration `json:"stop_timeout"`  // How long Stop waits for running messages
	Limiter      *TenantLimiter
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      2,
		PollInterval: time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// PoolConfigFromAm builds the pool configuration from the loaded configuration.
func PoolConfigFromAm(cfg *am.Config) WorkerPoolConfig {
	poolCfg := DefaultWorkerPoolConfig()
	poolCfg.Workers = cfg.Pulse.Workers
	if cfg.Pulse.PollIntervalMs > 0 {
		poolCfg.PollInterval = cfg.PollInterval()
	}
	if cfg.Pulse.PrisonRatePerSecond > 0 {
		poolCfg.Limiter = NewTenantLimiter(cfg.Pulse.PrisonRatePerSecond, cfg.Pulse.PrisonRateBurst)
	}
	return poolCfg
}

// WorkerPool runs queued messages through the handler registry.
type WorkerPool struct {
	queue      *Queue
	registry   *HandlerRegistry
	poolConfig WorkerPoolConfig
	parentCtx  context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     pulseLogger

	mu            sync.Mutex
	processed     int
	activeWorkers int
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Handlers must be registered before Start. Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, database *sql.DB, poolCfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:      NewQueue(database),
		registry:   NewHandlerRegistry(),
		poolConfig: poolCfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     pulseLogger{logger.Named("pulse")},
	}
}

// Start recovers messages orphaned by a previous run and starts the workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// Restart after Stop
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	ctx := wp.ctx
	wp.mu.Unlock()

	if err := wp.RecoverOrphaned(ctx); err != nil {
		wp.logger.Warnw("Failed to recover orphaned messages", "error", err)
	}

	for i := 0; i < wp.poolConfig.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
	wp.logger.Pulse("Worker pool started", "workers", wp.poolConfig.Workers, "handlers", wp.registry.Names())
}

// RecoverOrphaned re-queues messages left running by an interrupted process.
// Their handlers are idempotent, so running them again is safe.
func (wp *WorkerPool) RecoverOrphaned(ctx context.Context) error {
	n, err := wp.queue.store.RequeueRunning(ctx, wp.queue.now())
	if err != nil {
		return err
	}
	if n > 0 {
		wp.logger.Starting("Recovered orphaned messages from previous run", "count", n)
	}
	return nil
}

// Stop cancels the workers and waits for running messages to finish
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := wp.poolConfig.StopTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		wp.logger.Pulse("Worker pool stopped, all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Closing("Worker pool stop timed out, workers may still be running", "timeout", timeout)
	}
}

// worker polls the queue until ctx is done
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	interval := wp.poolConfig.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain what is queued before waiting for the next tick
		for {
			processed, err := wp.ProcessNext(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
					return
				}
				errorCount++
				wp.logger.Errorw("Worker error processing message",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off due to consecutive errors",
						"worker_id", id,
						"backoff", backoff,
						"consecutive_errors", errorCount)
					select {
					case <-ctx.Done():
						return
					case <-time.After(backoff):
					}
					backoff = min(backoff*2, maxBackoff)
				}
				break
			}

			if errorCount > 0 {
				wp.logger.Infow("Worker recovered from errors", "worker_id", id, "previous_error_count", errorCount)
			}
			errorCount = 0
			backoff = time.Second

			if !processed || ctx.Err() != nil {
				break
			}
		}
	}
}

// ProcessNext claims and runs one message. It reports whether a message was found.
// Handler failures are recorded on the message (retry or failed) and are not
// returned; the returned error is about the queue itself.
func (wp *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	m, err := wp.queue.Dequeue(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to dequeue message")
	}
	if m == nil {
		return false, nil
	}

	return true, wp.run(ctx, m)
}

// Drain runs queued messages inline until the queue is empty, including
// messages that handlers enqueue while draining. Returns how many ran.
func (wp *WorkerPool) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		processed, err := wp.ProcessNext(ctx)
		if err != nil {
			return count, err
		}
		if !processed {
			return count, ctx.Err()
		}
		count++
	}
}

func (wp *WorkerPool) run(ctx context.Context, m *Message) error {
	log := wp.logger.With("message_id", m.ID, "handler", m.HandlerName, "prison_code", m.PrisonCode)

	if err := wp.poolConfig.Limiter.Wait(ctx, m.PrisonCode); err != nil {
		m.Requeue("rate limit wait interrupted")
		return wp.queue.UpdateMessage(context.WithoutCancel(ctx), m)
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.processed++
		wp.mu.Unlock()
	}()

	start := time.Now()
	execErr := wp.registry.Execute(ctx, m)

	// Bookkeeping must land even when shutdown cancelled ctx mid-message
	persistCtx := context.WithoutCancel(ctx)

	if execErr == nil {
		log.Debugw("Message completed", "duration_ms", time.Since(start).Milliseconds())
		return wp.queue.CompleteMessage(persistCtx, m)
	}

	if ctx.Err() != nil && !IsPermanent(execErr) {
		wp.logger.Closing("Message interrupted by shutdown, re-queuing", "message_id", m.ID)
		m.Requeue("interrupted by shutdown")
		return wp.queue.UpdateMessage(persistCtx, m)
	}

	switch Classify(m, execErr) {
	case DecisionRetry:
		scheduleRetry(m, m.HandlerName, execErr, log)
		return wp.queue.UpdateMessage(persistCtx, m)
	default:
		log.Warnw("Message failed", "error", execErr, "retry_count", m.RetryCount, "permanent", IsPermanent(execErr))
		return wp.queue.FailMessage(persistCtx, m, execErr)
	}
}

// Queue returns the message queue
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry. Register handlers before Start.
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}

// ActiveWorkers returns how many workers are executing a message right now
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.activeWorkers
}

// Processed returns how many messages this pool has executed
func (wp *WorkerPool) Processed() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.processed
}
