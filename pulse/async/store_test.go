package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lctest "github.com/prisonops/lifecycle/internal/testing"
)

func TestStore_ClaimIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewStore(lctest.CreateMigratedTestDB(t))

	m, err := NewMessage("START_SUSPENSIONS", "MDI", nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateMessage(ctx, m))

	claimed, err := store.ClaimMessage(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimMessage(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed, "a running message cannot be claimed again")
}

func TestStore_RequeueRunning(t *testing.T) {
	ctx := context.Background()
	store := NewStore(lctest.CreateMigratedTestDB(t))

	running, err := NewMessage("ATTENDANCE_CREATE", "MDI", nil)
	require.NoError(t, err)
	running.Start()
	require.NoError(t, store.CreateMessage(ctx, running))

	done, err := NewMessage("ATTENDANCE_CREATE", "LEI", nil)
	require.NoError(t, err)
	done.Complete()
	require.NoError(t, store.CreateMessage(ctx, done))

	n, err := store.RequeueRunning(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetMessage(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, MessageStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)

	got, err = store.GetMessage(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, MessageStatusCompleted, got.Status)
}

func TestStore_ListAndCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewStore(lctest.CreateMigratedTestDB(t))

	old, err := NewMessage("ATTENDANCE_EXPIRE", "MDI", nil)
	require.NoError(t, err)
	old.Complete()
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.CreateMessage(ctx, old))

	fresh, err := NewMessage("ATTENDANCE_EXPIRE", "LEI", nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateMessage(ctx, fresh))

	queued := MessageStatusQueued
	list, err := store.ListMessages(ctx, &queued, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	all, err := store.ListMessages(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	removed, err := store.CleanupOldMessages(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
