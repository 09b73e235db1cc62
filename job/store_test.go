package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prisonops/lifecycle/errors"
	lctest "github.com/prisonops/lifecycle/internal/testing"
)

func TestStore_InitialiseAndIncrement(t *testing.T) {
	ctx := context.Background()
	database := lctest.CreateMigratedTestDB(t)
	s := NewStore(database)

	_, err := database.Exec(`INSERT INTO job (id, job_type, started_at) VALUES (123, 'START_SUSPENSIONS', '2026-10-17T00:05:00Z')`)
	require.NoError(t, err)

	require.NoError(t, s.InitialiseCounts(ctx, 123, 2))

	last, err := s.IncrementCount(ctx, 123, "MDI")
	require.NoError(t, err)
	assert.False(t, last)

	j, err := s.Get(ctx, 123)
	require.NoError(t, err)
	assert.False(t, j.Successful)
	assert.Nil(t, j.EndedAt)
	assert.Equal(t, 1, j.CompletedSubTasks)

	last, err = s.IncrementCount(ctx, 123, "LEI")
	require.NoError(t, err)
	assert.True(t, last)

	j, err = s.Get(ctx, 123)
	require.NoError(t, err)
	assert.True(t, j.Successful)
	assert.NotNil(t, j.EndedAt)
	assert.Equal(t, 2, j.CompletedSubTasks)
	assert.Equal(t, 2, j.TotalSubTasks)
}

func TestStore_InitialiseZeroIsSuccessful(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	j, err := s.Create(ctx, AttendanceCreate)
	require.NoError(t, err)
	require.NoError(t, s.InitialiseCounts(ctx, j.ID, 0))

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, got.Successful)
	assert.NotNil(t, got.EndedAt)
}

func TestStore_IncrementFinishedJobIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	j, err := s.Create(ctx, DeallocateEnding)
	require.NoError(t, err)
	require.NoError(t, s.InitialiseCounts(ctx, j.ID, 1))

	last, err := s.IncrementCount(ctx, j.ID, "MDI")
	require.NoError(t, err)
	assert.True(t, last)

	// Redelivered sub-task
	last, err = s.IncrementCount(ctx, j.ID, "MDI")
	require.NoError(t, err)
	assert.False(t, last)

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedSubTasks)
}

func TestStore_RedeliveredPrisonCountsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	j, err := s.Create(ctx, StartSuspensions)
	require.NoError(t, err)
	require.NoError(t, s.InitialiseCounts(ctx, j.ID, 2))

	last, err := s.IncrementCount(ctx, j.ID, "MDI")
	require.NoError(t, err)
	assert.False(t, last)

	// MDI redelivered after its count committed; LEI still outstanding
	last, err = s.IncrementCount(ctx, j.ID, "MDI")
	require.NoError(t, err)
	assert.False(t, last)

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedSubTasks)
	assert.False(t, got.Successful)
	assert.Nil(t, got.EndedAt)

	last, err = s.IncrementCount(ctx, j.ID, "LEI")
	require.NoError(t, err)
	assert.True(t, last, "LEI is the last outstanding prison")
}

func TestStore_UnknownJob(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	_, err := s.IncrementCount(ctx, 999, "MDI")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(s.InitialiseCounts(ctx, 999, 3)))

	_, err = s.Create(ctx, JobType("REBUILD_EVERYTHING"))
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestStore_ConcurrentIncrementsCountOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	const prisons = 12
	j, err := s.Create(ctx, AttendanceCreate)
	require.NoError(t, err)
	require.NoError(t, s.InitialiseCounts(ctx, j.ID, prisons))

	var lastCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < prisons; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last, err := s.IncrementCount(ctx, j.ID, fmt.Sprintf("P%02d", i))
			assert.NoError(t, err)
			if last {
				lastCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), lastCount.Load(), "exactly one completion is the last")

	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, prisons, got.CompletedSubTasks)
	assert.True(t, got.Successful)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore(lctest.CreateMigratedTestDB(t))

	for _, jt := range []JobType{StartSuspensions, EndSuspensions, StartSuspensions} {
		_, err := s.Create(ctx, jt)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].ID, all[1].ID, "newest first")

	jt := StartSuspensions
	only, err := s.List(ctx, &jt, 1)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, StartSuspensions, only[0].Type)
}
