package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prisonops/lifecycle/allocation"
	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/attendance"
	"github.com/prisonops/lifecycle/events"
	lctest "github.com/prisonops/lifecycle/internal/testing"
	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/pulse/async"
	"github.com/prisonops/lifecycle/rollout"
)

func testConfig() *am.Config {
	return &am.Config{
		Pulse: am.PulseConfig{Workers: 0},
		Jobs: am.JobsConfig{
			Timezone:            "UTC",
			DispatchConcurrency: 2,
			ExpireUnmarked:      true,
			Schedule: am.ScheduleConfig{
				AttendanceCreate: "02:00",
				StartSuspensions: "00:05",
			},
		},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(), lctest.CreateMigratedTestDB(t), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func goLive(t *testing.T, a *App, codes ...string) {
	t.Helper()
	for _, code := range codes {
		require.NoError(t, a.Rollout.Upsert(context.Background(), rollout.Prison{
			Code:                code,
			ActivitiesRolledOut: true,
			PrisonLive:          true,
		}))
	}
}

func TestAttendanceCreateChainsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	goLive(t, a, "MDI", "LEI")

	today := util.Today(time.Now(), time.UTC)
	_, scheduleID := lctest.InsertActivitySchedule(t, a.DB, "MDI", nil)
	lctest.InsertInstance(t, a.DB, scheduleID, today, "09:00", "11:30", false)
	require.NoError(t, a.AllocStore.Create(ctx, &allocation.Allocation{
		PrisonCode:         "MDI",
		PrisonerNumber:     "A1234BC",
		ActivityScheduleID: scheduleID,
		Status:             allocation.Active,
		StartDate:          today.AddDate(0, -1, 0),
		AllocatedBy:        "ALLOCATOR",
	}))

	jobID, err := a.StartScheduled(ctx, string(job.AttendanceCreate), today)
	require.NoError(t, err)

	ran, err := a.Pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ran, "two creates then two expiries")

	created, err := a.Jobs.Store().Get(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, created.Successful)
	assert.Equal(t, 2, created.CompletedSubTasks)

	expireType := job.AttendanceExpire
	expiries, err := a.Jobs.Store().List(ctx, &expireType, 0)
	require.NoError(t, err)
	require.Len(t, expiries, 1, "expiry starts once however many prisons report")
	assert.True(t, expiries[0].Successful)

	attendances, err := attendance.NewStore(a.DB).FindOnDate(ctx, "MDI", today)
	require.NoError(t, err)
	require.Len(t, attendances, 1)
	assert.Equal(t, attendance.Waiting, attendances[0].Status)

	createdType := events.AttendanceCreated
	published, err := a.Outbox.List(ctx, &createdType, 0)
	require.NoError(t, err)
	assert.Len(t, published, 1)
}

func TestJobCompletesWhenAPrisonRollsOutLater(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	goLive(t, a, "MDI")
	require.NoError(t, a.Rollout.Upsert(ctx, rollout.Prison{
		Code:                  "LEI",
		ActivitiesRolledOut:   true,
		ActivitiesRolloutDate: util.Ptr(a.Rollout.Today().AddDate(0, 0, 7)),
		PrisonLive:            true,
	}))

	j, err := a.Jobs.Start(ctx, job.DeallocateEnding, job.StartOptions{})
	require.NoError(t, err)

	ran, err := a.Pool.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran, "LEI is not sent a message before its rollout date")

	got, err := a.Jobs.Store().Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalSubTasks)
	assert.Equal(t, 1, got.CompletedSubTasks)
	assert.True(t, got.Successful)

	failed := async.MessageStatusFailed
	failures, err := a.Pool.Queue().ListMessages(ctx, &failed, 0)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestStartScheduled_UnknownJobType(t *testing.T) {
	a := newTestApp(t)
	_, err := a.StartScheduled(context.Background(), "MAKE_TEA", time.Now())
	assert.Error(t, err)
}

func TestStartSeedsSchedule(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	require.NoError(t, a.Start(ctx))

	entries, err := a.Schedules.List(ctx)
	require.NoError(t, err)
	byType := map[string]string{}
	for _, e := range entries {
		byType[e.JobType] = e.RunAt
	}
	assert.Equal(t, map[string]string{
		string(job.AttendanceCreate): "02:00",
		string(job.StartSuspensions): "00:05",
	}, byType)
}
