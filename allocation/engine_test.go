package allocation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/events"
	lctest "github.com/prisonops/lifecycle/internal/testing"
	"github.com/prisonops/lifecycle/internal/util"
)

type published struct {
	eventType events.Type
	entityID  int64
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Send(_ context.Context, eventType events.Type, entityID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{eventType, entityID})
	return nil
}

// countingRepo counts saves per allocation
type countingRepo struct {
	*Store
	saves map[int64]int
}

func (r *countingRepo) Save(ctx context.Context, a *Allocation) error {
	r.saves[a.ID]++
	return r.Store.Save(ctx, a)
}

type suspenderCall struct {
	op          string
	prisoner    string
	scheduleIDs []int64
}

type fakeSuspender struct {
	calls []suspenderCall
}

func (f *fakeSuspender) SuspendFuture(_ context.Context, _, prisonerNumber string, _ time.Time) (int, error) {
	f.calls = append(f.calls, suspenderCall{op: "suspend", prisoner: prisonerNumber})
	return 1, nil
}

func (f *fakeSuspender) ResetFuture(_ context.Context, _, prisonerNumber string, scheduleIDs []int64, _ time.Time) (int, error) {
	f.calls = append(f.calls, suspenderCall{op: "reset", prisoner: prisonerNumber, scheduleIDs: scheduleIDs})
	return 1, nil
}

type fixture struct {
	db         *sql.DB
	store      *Store
	repo       *countingRepo
	engine     *Engine
	publisher  *recordingPublisher
	suspender  *fakeSuspender
	activityID int64
	scheduleID int64
}

func newFixture(t *testing.T, scheduleEnd *time.Time) *fixture {
	t.Helper()
	database := lctest.CreateMigratedTestDB(t)
	activityID, scheduleID := lctest.InsertActivitySchedule(t, database, "MDI", scheduleEnd)

	f := &fixture{
		db:         database,
		store:      NewStore(database),
		publisher:  &recordingPublisher{},
		suspender:  &fakeSuspender{},
		activityID: activityID,
		scheduleID: scheduleID,
	}
	f.repo = &countingRepo{Store: f.store, saves: map[int64]int{}}
	f.engine = NewEngine(f.repo, f.suspender, f.publisher, "", zaptest.NewLogger(t).Sugar())
	f.engine.now = func() time.Time { return today.Add(5 * time.Minute) }
	return f
}

func (f *fixture) allocate(t *testing.T, prisoner string, status Status, change func(*Allocation)) *Allocation {
	t.Helper()
	a := &Allocation{
		PrisonCode:         "MDI",
		PrisonerNumber:     prisoner,
		ActivityScheduleID: f.scheduleID,
		Status:             status,
		StartDate:          today.AddDate(0, -1, 0),
		AllocatedBy:        "ALLOCATOR",
	}
	if change != nil {
		change(a)
	}
	require.NoError(t, f.store.Create(context.Background(), a))
	return a
}

func (f *fixture) reload(t *testing.T, id int64) *Allocation {
	t.Helper()
	a, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestEngine_StartSuspensions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	unpaid := f.allocate(t, "A1111AA", Active, func(a *Allocation) {
		a.PlannedSuspension = &PlannedSuspension{StartDate: today, PlannedBy: "SUSPENDER"}
	})
	paid := f.allocate(t, "B2222BB", Active, func(a *Allocation) {
		a.PlannedSuspension = &PlannedSuspension{StartDate: today, EndDate: util.Ptr(tomorrow), Paid: true, PlannedBy: "SUSPENDER"}
	})
	later := f.allocate(t, "C3333CC", Active, func(a *Allocation) {
		a.PlannedSuspension = &PlannedSuspension{StartDate: tomorrow}
	})
	f.allocate(t, "D4444DD", Active, nil)

	result, err := f.engine.StartSuspensions(ctx, "MDI", today)
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.Equal(t, 4, result.Examined)
	assert.Equal(t, 2, result.Changed)

	got := f.reload(t, unpaid.ID)
	assert.Equal(t, Suspended, got.Status)
	assert.Equal(t, "SUSPENDER", got.SuspendedBy)
	assert.Equal(t, ReasonPlannedSuspension, got.SuspendedReason)
	require.NotNil(t, got.PlannedSuspension, "plan stays until it ends")

	assert.Equal(t, SuspendedWithPay, f.reload(t, paid.ID).Status)
	assert.Equal(t, Active, f.reload(t, later.ID).Status)

	assert.Equal(t, 1, f.repo.saves[unpaid.ID], "persisted exactly once")
	assert.Equal(t, 1, f.repo.saves[paid.ID])
	assert.Zero(t, f.repo.saves[later.ID])

	// Redelivery changes nothing
	result, err = f.engine.StartSuspensions(ctx, "MDI", today)
	require.NoError(t, err)
	assert.Zero(t, result.Changed)
}

func TestEngine_EndSuspensions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ending := f.allocate(t, "A1111AA", Active, func(a *Allocation) {
		a.PlannedSuspension = &PlannedSuspension{StartDate: yesterday, EndDate: util.Ptr(today), Paid: true}
	})
	continuing := f.allocate(t, "B2222BB", Active, func(a *Allocation) {
		a.PlannedSuspension = &PlannedSuspension{StartDate: yesterday, EndDate: util.Ptr(tomorrow)}
	})

	// Both were suspended yesterday
	f.engine.now = func() time.Time { return yesterday }
	_, err := f.engine.StartSuspensions(ctx, "MDI", yesterday)
	require.NoError(t, err)
	require.Equal(t, SuspendedWithPay, f.reload(t, ending.ID).Status)

	result, err := f.engine.EndSuspensions(ctx, "MDI", today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)

	got := f.reload(t, ending.ID)
	assert.Equal(t, Active, got.Status)
	assert.Nil(t, got.PlannedSuspension)
	assert.Nil(t, got.SuspendedTime)
	assert.Equal(t, Suspended, f.reload(t, continuing.ID).Status)
}

func TestEngine_DeallocateEnding_ScheduleEnded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, util.Ptr(yesterday))

	a := f.allocate(t, "A1111AA", Active, nil)
	pending := lctest.InsertWaitingList(t, f.db, "MDI", f.activityID, "B2222BB", "PENDING")
	approved := lctest.InsertWaitingList(t, f.db, "MDI", f.activityID, "C3333CC", "APPROVED")
	withdrawn := lctest.InsertWaitingList(t, f.db, "MDI", f.activityID, "D4444DD", "WITHDRAWN")

	result, err := f.engine.DeallocateEnding(ctx, "MDI", today)
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.Equal(t, 1, result.Changed)

	got := f.reload(t, a.ID)
	assert.Equal(t, Ended, got.Status)
	assert.Equal(t, ReasonEnded, got.DeallocatedReason)
	assert.Equal(t, am.DefaultSystemActor, got.DeallocatedBy)
	require.NotNil(t, got.DeallocatedTime)

	apps, err := f.store.WaitingList(ctx, f.activityID)
	require.NoError(t, err)
	statuses := map[int64]WaitingListStatus{}
	for _, w := range apps {
		statuses[w.ID] = w.Status
	}
	assert.Equal(t, WaitingListDeclined, statuses[pending])
	assert.Equal(t, WaitingListDeclined, statuses[approved])
	assert.Equal(t, WaitingListWithdrawn, statuses[withdrawn])

	assert.Equal(t, []published{{events.AllocationAmended, a.ID}}, f.publisher.sent)

	result, err = f.engine.DeallocateEnding(ctx, "MDI", today)
	require.NoError(t, err)
	assert.Zero(t, result.Examined, "ended allocations are not candidates")
}

func TestEngine_DeallocateEnding_ScheduleEndsToday(t *testing.T) {
	f := newFixture(t, util.Ptr(today))
	a := f.allocate(t, "A1111AA", Active, nil)

	result, err := f.engine.DeallocateEnding(context.Background(), "MDI", today)
	require.NoError(t, err)
	assert.Zero(t, result.Changed, "the last day still runs")
	assert.Equal(t, Active, f.reload(t, a.ID).Status)
}

func TestEngine_DeallocateEnding_TieBreak(t *testing.T) {
	planned := func(date time.Time) func(*Allocation) {
		return func(a *Allocation) {
			a.PlannedDeallocation = &PlannedDeallocation{PlannedDate: date, Reason: "RELEASED", PlannedBy: "PLANNER"}
		}
	}
	twoDaysAgo := today.AddDate(0, 0, -2)

	tests := []struct {
		name        string
		scheduleEnd *time.Time
		change      func(*Allocation)
		wantReason  string
		wantBy      string
	}{
		{"planned only", nil, planned(today), "RELEASED", "PLANNER"},
		{"planned earlier than schedule end", util.Ptr(yesterday), planned(twoDaysAgo), "RELEASED", "PLANNER"},
		{"schedule end earlier than planned", util.Ptr(twoDaysAgo), planned(yesterday), ReasonEnded, am.DefaultSystemActor},
		{"same date prefers planned", util.Ptr(yesterday), planned(yesterday), "RELEASED", "PLANNER"},
		{"allocation end date", nil, func(a *Allocation) { a.EndDate = util.Ptr(yesterday) }, ReasonEnded, am.DefaultSystemActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.scheduleEnd)
			a := f.allocate(t, "A1111AA", Suspended, tt.change)

			_, err := f.engine.DeallocateEnding(context.Background(), "MDI", today)
			require.NoError(t, err)

			got := f.reload(t, a.ID)
			assert.Equal(t, Ended, got.Status)
			assert.Equal(t, tt.wantReason, got.DeallocatedReason)
			assert.Equal(t, tt.wantBy, got.DeallocatedBy)
		})
	}
}

func TestEngine_DeallocateEnding_PlannedDeclinesOnlyThatPrisoner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.allocate(t, "A1111AA", Pending, func(a *Allocation) {
		a.PlannedDeallocation = &PlannedDeallocation{PlannedDate: today, Reason: "TRANSFERRED", PlannedBy: "PLANNER"}
	})
	own := lctest.InsertWaitingList(t, f.db, "MDI", f.activityID, "A1111AA", "APPROVED")
	other := lctest.InsertWaitingList(t, f.db, "MDI", f.activityID, "B2222BB", "PENDING")

	_, err := f.engine.DeallocateEnding(ctx, "MDI", today)
	require.NoError(t, err)

	apps, err := f.store.WaitingList(ctx, f.activityID)
	require.NoError(t, err)
	for _, w := range apps {
		switch w.ID {
		case own:
			assert.Equal(t, WaitingListDeclined, w.Status)
			assert.Equal(t, DeclinedAllocationEnded, w.DeclinedReason)
		case other:
			assert.Equal(t, WaitingListPending, w.Status)
		}
	}
}

func TestEngine_DeallocateEnding_PublishFailureKeepsChange(t *testing.T) {
	f := newFixture(t, util.Ptr(yesterday))
	f.publisher.err = errors.New("broker unavailable")
	a := f.allocate(t, "A1111AA", Active, nil)

	result, err := f.engine.DeallocateEnding(context.Background(), "MDI", today)
	require.NoError(t, err)
	assert.Error(t, result.Err())
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, Ended, f.reload(t, a.ID).Status)
}

func TestEngine_AutoSuspendAndReceiveBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, otherSchedule := lctest.InsertActivitySchedule(t, f.db, "MDI", nil)
	plain := f.allocate(t, "A1111AA", Active, nil)
	withPlan := f.allocate(t, "A1111AA", Active, func(a *Allocation) {
		a.ActivityScheduleID = otherSchedule
		a.PlannedSuspension = &PlannedSuspension{StartDate: tomorrow, Paid: true, PlannedBy: "SUSPENDER"}
	})
	someoneElse := f.allocate(t, "B2222BB", Active, nil)

	result, err := f.engine.AutoSuspend(ctx, "MDI", "A1111AA")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Changed)
	assert.Equal(t, AutoSuspended, f.reload(t, plain.ID).Status)
	assert.Equal(t, AutoSuspended, f.reload(t, withPlan.ID).Status)
	assert.Equal(t, Active, f.reload(t, someoneElse.ID).Status)
	assert.Equal(t, []suspenderCall{{op: "suspend", prisoner: "A1111AA"}}, f.suspender.calls)

	// Back the day the planned suspension starts
	result, err = f.engine.ReceiveBack(ctx, "MDI", "A1111AA", tomorrow)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Changed)
	assert.Equal(t, Active, f.reload(t, plain.ID).Status)
	assert.Equal(t, SuspendedWithPay, f.reload(t, withPlan.ID).Status)

	require.Len(t, f.suspender.calls, 2)
	assert.Equal(t, suspenderCall{op: "reset", prisoner: "A1111AA", scheduleIDs: []int64{f.scheduleID}}, f.suspender.calls[1])
}

func TestEngine_QueryFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.db.Close())

	_, err := f.engine.StartSuspensions(context.Background(), "MDI", today)
	assert.Error(t, err)
}
