package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantLimiter_PerPrison(t *testing.T) {
	limiter := NewTenantLimiter(0.001, 1)

	assert.True(t, limiter.Allow("MDI"))
	assert.False(t, limiter.Allow("MDI"), "burst of one is spent")
	assert.True(t, limiter.Allow("LEI"), "other prisons have their own bucket")
	assert.Equal(t, 2, limiter.Tenants())
}

func TestTenantLimiter_Disabled(t *testing.T) {
	var nilLimiter *TenantLimiter
	assert.True(t, nilLimiter.Allow("MDI"))
	require.NoError(t, nilLimiter.Wait(context.Background(), "MDI"))

	unlimited := NewTenantLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow("MDI"))
	}
}

func TestTenantLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewTenantLimiter(0.001, 1)
	require.NoError(t, limiter.Wait(context.Background(), "MDI"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "MDI"))
}
