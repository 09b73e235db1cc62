package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prisonops/lifecycle/allocation"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/events"
	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/pulse/async"
)

var today = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

type fakeRollout map[string]bool

func (f fakeRollout) IsActivitiesRolledOutAt(_ context.Context, code string) (bool, error) {
	return f[code], nil
}

type fakeCounter struct {
	mu         sync.Mutex
	increments map[int64]int
	lastAt     int
}

func (c *fakeCounter) IncrementCount(_ context.Context, jobID int64, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.increments == nil {
		c.increments = map[int64]int{}
	}
	c.increments[jobID]++
	return c.increments[jobID] == c.lastAt, nil
}

type fakeStarter struct {
	started []job.JobType
	err     error
}

func (s *fakeStarter) Start(_ context.Context, jobType job.JobType, _ job.StartOptions) (*job.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.started = append(s.started, jobType)
	return &job.Job{ID: int64(100 + len(s.started)), Type: jobType}, nil
}

type capture struct {
	message string
	err     error
}

type recordingMonitor struct {
	captured []capture
}

func (m *recordingMonitor) Capture(message string, err error) {
	m.captured = append(m.captured, capture{message, err})
}

type engineCall struct {
	op     string
	prison string
	date   time.Time
}

type fakeEngines struct {
	calls []engineCall
	err   error
}

func (f *fakeEngines) record(op, prison string, date time.Time) (batch.Result, error) {
	f.calls = append(f.calls, engineCall{op, prison, date})
	return batch.Result{Examined: 1, Changed: 1}, f.err
}

func (f *fakeEngines) StartSuspensions(_ context.Context, p string, d time.Time) (batch.Result, error) {
	return f.record("start", p, d)
}
func (f *fakeEngines) EndSuspensions(_ context.Context, p string, d time.Time) (batch.Result, error) {
	return f.record("end", p, d)
}
func (f *fakeEngines) DeallocateEnding(_ context.Context, p string, d time.Time) (batch.Result, error) {
	return f.record("deallocate", p, d)
}
func (f *fakeEngines) CreateAttendances(_ context.Context, p string, d time.Time) (batch.Result, error) {
	return f.record("create", p, d)
}
func (f *fakeEngines) ExpireUnmarked(_ context.Context, p string, d time.Time) (batch.Result, error) {
	return f.record("expire", p, d)
}

type harness struct {
	counter  *fakeCounter
	starter  *fakeStarter
	monitor  *recordingMonitor
	engines  *fakeEngines
	handlers map[job.JobType]*Handler
}

func newHarness(t *testing.T, lastAt int) *harness {
	t.Helper()
	h := &harness{
		counter: &fakeCounter{lastAt: lastAt},
		starter: &fakeStarter{},
		monitor: &recordingMonitor{},
		engines: &fakeEngines{},
	}
	h.handlers = handlersByType(Deps{
		Rollout:     fakeRollout{"MDI": true, "LEI": true},
		Counter:     h.counter,
		Starter:     h.starter,
		Monitor:     h.monitor,
		Allocations: h.engines,
		Attendances: h.engines,
		Now:         func() time.Time { return today.Add(2 * time.Hour) },
		Log:         zaptest.NewLogger(t).Sugar(),
	})
	return h
}

func handlersByType(deps Deps) map[job.JobType]*Handler {
	out := map[job.JobType]*Handler{}
	for _, h := range NewHandlers(deps) {
		out[h.JobType()] = h
	}
	return out
}

func message(t *testing.T, jobID int64, jobType job.JobType, payload job.Event) *async.Message {
	t.Helper()
	data, err := json.Marshal(job.JobEventMessage{JobID: jobID, JobType: jobType, Payload: payload})
	require.NoError(t, err)
	m, err := async.NewMessage(string(jobType), payload.Prison(), data)
	require.NoError(t, err)
	return m
}

func TestNewHandlers_OnePerJobType(t *testing.T) {
	registry := async.NewHandlerRegistry()
	Register(registry, Deps{Log: zaptest.NewLogger(t).Sugar()})

	var want []string
	for _, jt := range job.AllTypes {
		want = append(want, string(jt))
	}
	assert.ElementsMatch(t, want, registry.Names())
}

func TestHandler_PrisonNotRolledOut(t *testing.T) {
	h := newHarness(t, 1)

	err := h.handlers[job.StartSuspensions].Execute(context.Background(),
		message(t, 1, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "RSI"}))

	require.Error(t, err)
	assert.Equal(t, "Supplied prison RSI is not rolled out.", err.Error())
	assert.True(t, errors.IsConfigurationError(err))
	assert.True(t, async.IsPermanent(err))
	assert.Empty(t, h.engines.calls, "no mutation")
	assert.Empty(t, h.counter.increments, "not counted")
	assert.Empty(t, h.monitor.captured)
}

func TestHandler_CountsAndRunsEngine(t *testing.T) {
	h := newHarness(t, 2)

	require.NoError(t, h.handlers[job.DeallocateEnding].Execute(context.Background(),
		message(t, 7, job.DeallocateEnding, job.PrisonCodeEvent{PrisonCode: "MDI"})))

	assert.Equal(t, []engineCall{{"deallocate", "MDI", today}}, h.engines.calls)
	assert.Equal(t, 1, h.counter.increments[7])
	assert.Empty(t, h.starter.started)
}

func TestHandler_MutationErrorIsCapturedAndCounted(t *testing.T) {
	h := newHarness(t, 5)
	h.engines.err = errors.New("database is locked")

	err := h.handlers[job.EndSuspensions].Execute(context.Background(),
		message(t, 3, job.EndSuspensions, job.PrisonCodeEvent{PrisonCode: "LEI"}))

	require.NoError(t, err)
	require.Len(t, h.monitor.captured, 1)
	assert.Equal(t, EndSuspensionsFailed, h.monitor.captured[0].message)
	assert.True(t, errors.Is(h.monitor.captured[0].err, h.engines.err))
	assert.Equal(t, 1, h.counter.increments[3])
}

func TestHandler_PersistenceFailureWhileSuspending(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	columns := []string{
		"id", "prison_code", "prisoner_number", "activity_schedule_id", "activity_id",
		"prisoner_status", "start_date", "end_date", "allocated_time", "allocated_by",
		"deallocated_time", "deallocated_reason", "deallocated_by",
		"suspended_time", "suspended_reason", "suspended_by",
		"ps_start", "ps_end", "ps_paid", "ps_by",
		"pd_date", "pd_reason", "pd_by",
	}
	mock.ExpectQuery("FROM allocation a").
		WithArgs("MDI", "ACTIVE").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(1), "MDI", "A1111AA", int64(10), int64(20),
			"ACTIVE", "2026-09-01", nil, "2026-09-01T10:00:00Z", "ALLOCATOR",
			nil, nil, nil,
			nil, nil, nil,
			"2026-10-17", nil, int64(0), "SUSPENDER",
			nil, nil, nil,
		))
	diskErr := errors.New("disk I/O error")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE allocation SET").WillReturnError(diskErr)
	mock.ExpectRollback()

	log := zaptest.NewLogger(t).Sugar()
	monitor := &recordingMonitor{}
	counter := &fakeCounter{lastAt: 2}
	handlers := handlersByType(Deps{
		Rollout:     fakeRollout{"MDI": true},
		Counter:     counter,
		Starter:     &fakeStarter{},
		Monitor:     monitor,
		Allocations: allocation.NewEngine(allocation.NewStore(database), nil, events.LogPublisher{Log: log}, "", log),
		Now:         func() time.Time { return today.Add(5 * time.Minute) },
		Log:         log,
	})

	err = handlers[job.StartSuspensions].Execute(context.Background(),
		message(t, 123, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "MDI"}))
	require.NoError(t, err)

	require.Len(t, monitor.captured, 1)
	assert.Equal(t, "An error occurred while suspending allocations due to be suspended today", monitor.captured[0].message)
	assert.True(t, errors.Is(monitor.captured[0].err, diskErr))
	assert.Equal(t, 1, counter.increments[123], "counter still incremented")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ChainsEndSuspensions(t *testing.T) {
	h := newHarness(t, 2)
	handler := h.handlers[job.StartSuspensions]

	require.NoError(t, handler.Execute(context.Background(), message(t, 1, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "MDI"})))
	assert.Empty(t, h.starter.started)

	require.NoError(t, handler.Execute(context.Background(), message(t, 1, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "LEI"})))
	assert.Equal(t, []job.JobType{job.EndSuspensions}, h.starter.started)
}

func TestHandler_AttendanceCreateChainsExpireOnlyWhenRequested(t *testing.T) {
	tomorrow := today.AddDate(0, 0, 1)

	for _, expire := range []bool{true, false} {
		h := newHarness(t, 1)
		err := h.handlers[job.AttendanceCreate].Execute(context.Background(),
			message(t, 9, job.AttendanceCreate, job.AttendanceEvent{PrisonCode: "MDI", Date: tomorrow, ExpireUnmarked: expire}))
		require.NoError(t, err)

		assert.Equal(t, []engineCall{{"create", "MDI", tomorrow}}, h.engines.calls, "payload date is used")
		if expire {
			assert.Equal(t, []job.JobType{job.AttendanceExpire}, h.starter.started)
		} else {
			assert.Empty(t, h.starter.started)
		}
	}
}

func TestHandler_ExpireUsesYesterday(t *testing.T) {
	h := newHarness(t, 1)

	require.NoError(t, h.handlers[job.AttendanceExpire].Execute(context.Background(),
		message(t, 4, job.AttendanceExpire, job.PrisonCodeEvent{PrisonCode: "MDI"})))

	assert.Equal(t, []engineCall{{"expire", "MDI", today.AddDate(0, 0, -1)}}, h.engines.calls)
	assert.Empty(t, h.starter.started, "expiry ends the chain")
}

func TestHandler_ChainFailureIsCaptured(t *testing.T) {
	h := newHarness(t, 1)
	h.starter.err = errors.New("queue unavailable")

	err := h.handlers[job.StartSuspensions].Execute(context.Background(),
		message(t, 1, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "MDI"}))
	require.NoError(t, err)
	require.Len(t, h.monitor.captured, 1)
	assert.Contains(t, h.monitor.captured[0].message, "END_SUSPENSIONS")
}

func TestHandler_RejectsForeignMessages(t *testing.T) {
	h := newHarness(t, 1)

	err := h.handlers[job.EndSuspensions].Execute(context.Background(),
		message(t, 1, job.StartSuspensions, job.PrisonCodeEvent{PrisonCode: "MDI"}))
	assert.True(t, errors.IsInvalidRequestError(err))

	garbled, err := async.NewMessage("END_SUSPENSIONS", "MDI", []byte(`{"jobId":1}`))
	require.NoError(t, err)
	err = h.handlers[job.EndSuspensions].Execute(context.Background(), garbled)
	assert.True(t, async.IsPermanent(err))
	assert.Empty(t, h.counter.increments)
}
