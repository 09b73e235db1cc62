package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/prisonops/lifecycle/errors"
	lctest "github.com/prisonops/lifecycle/internal/testing"
	"github.com/prisonops/lifecycle/logger"
)

func TestType_WireName(t *testing.T) {
	assert.Equal(t, "activities.prisoner.attendance-expired", AttendanceExpired.WireName())
	assert.Equal(t, "activities.prisoner.allocation-amended", AllocationAmended.WireName())

	got, err := ParseType("activities.prisoner.attendance-created")
	require.NoError(t, err)
	assert.Equal(t, AttendanceCreated, got)

	got, err = ParseType("PRISONER_ATTENDANCE_AMENDED")
	require.NoError(t, err)
	assert.Equal(t, AttendanceAmended, got)

	_, err = ParseType("activities.prisoner.released")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestOutbox_SendAndList(t *testing.T) {
	ctx := context.Background()
	outbox := NewOutbox(lctest.CreateMigratedTestDB(t), zaptest.NewLogger(t).Sugar())

	require.NoError(t, outbox.Send(ctx, AttendanceExpired, 11))
	require.NoError(t, outbox.Send(ctx, AttendanceExpired, 12))
	require.NoError(t, outbox.Send(ctx, AllocationAmended, 3))

	all, err := outbox.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, AllocationAmended, all[0].Type)
	assert.Equal(t, int64(3), all[0].EntityID)

	expired := AttendanceExpired
	onlyExpired, err := outbox.List(ctx, &expired, 0)
	require.NoError(t, err)
	require.Len(t, onlyExpired, 2)
	assert.Equal(t, int64(12), onlyExpired[0].EntityID)
	assert.False(t, onlyExpired[0].OccurredAt.IsZero())

	assert.True(t, errors.IsInvalidRequestError(outbox.Send(ctx, Type("PRISONER_ESCAPED"), 1)))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := LogPublisher{Log: zap.New(core).Sugar()}

	ctx := logger.WithPrisonCode(context.Background(), "MDI")
	require.NoError(t, p.Send(ctx, AttendanceCreated, 99))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "activities.prisoner.attendance-created", fields["event"])
	assert.Equal(t, int64(99), fields["entity_id"])
	assert.Equal(t, "MDI", fields["prison_code"])
}
