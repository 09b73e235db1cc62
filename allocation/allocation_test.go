package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prisonops/lifecycle/errors"
)

var (
	today     = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
	tomorrow  = today.AddDate(0, 0, 1)
)

func TestPlannedSuspension_Window(t *testing.T) {
	var none *PlannedSuspension
	assert.False(t, none.ActiveOn(today))
	assert.False(t, none.EndedBy(today))

	open := &PlannedSuspension{StartDate: today}
	assert.True(t, open.ActiveOn(today))
	assert.False(t, open.ActiveOn(yesterday))
	assert.False(t, open.EndedBy(tomorrow))

	endsToday := &PlannedSuspension{StartDate: yesterday, EndDate: &today}
	assert.True(t, endsToday.ActiveOn(yesterday))
	assert.False(t, endsToday.ActiveOn(today), "end date is exclusive")
	assert.True(t, endsToday.EndedBy(today))
}

func TestAllocation_Transitions(t *testing.T) {
	at := today.Add(5 * time.Minute)

	a := &Allocation{ID: 1, Status: Active}
	require.NoError(t, a.Suspend(at, "SUSPENDER", ReasonPlannedSuspension, true))
	assert.Equal(t, SuspendedWithPay, a.Status)
	assert.Equal(t, "SUSPENDER", a.SuspendedBy)

	require.NoError(t, a.Activate())
	assert.Equal(t, Active, a.Status)
	assert.Nil(t, a.SuspendedTime)

	require.NoError(t, a.AutoSuspend(at, "system", ReasonTemporaryAbsence))
	assert.Equal(t, AutoSuspended, a.Status)
	assert.True(t, a.Status.IsSuspended())

	err := a.Deallocate(at, ReasonEnded, "system")
	assert.True(t, errors.IsConflictError(err), "auto-suspended allocations are not ended")

	require.NoError(t, a.Activate())
	require.NoError(t, a.Deallocate(at, ReasonEnded, "system"))
	assert.Equal(t, Ended, a.Status)
	assert.Equal(t, &at, a.DeallocatedTime)

	for name, fn := range map[string]func() error{
		"suspend":      func() error { return a.Suspend(at, "x", "y", false) },
		"auto suspend": func() error { return a.AutoSuspend(at, "x", "y") },
		"activate":     a.Activate,
		"deallocate":   func() error { return a.Deallocate(at, "x", "y") },
	} {
		assert.True(t, errors.IsConflictError(fn()), "ended is terminal: %s", name)
	}
}
