package async

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter throttles message execution per prison.
// A zero rate disables throttling.
type TenantLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTenantLimiter creates a limiter allowing perSecond messages per prison.
func NewTenantLimiter(perSecond float64, burst int) *TenantLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &TenantLimiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *TenantLimiter) limiter(prisonCode string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[prisonCode]
	if !ok {
		l = rate.NewLimiter(t.rate, t.burst)
		t.limiters[prisonCode] = l
	}
	return l
}

// Wait blocks until the prison may run another message or ctx is done.
func (t *TenantLimiter) Wait(ctx context.Context, prisonCode string) error {
	if t == nil || t.rate <= 0 {
		return nil
	}
	return t.limiter(prisonCode).Wait(ctx)
}

// Allow reports whether the prison may run a message now, consuming a token if so.
func (t *TenantLimiter) Allow(prisonCode string) bool {
	if t == nil || t.rate <= 0 {
		return true
	}
	return t.limiter(prisonCode).Allow()
}

// Tenants returns the number of prisons seen so far
func (t *TenantLimiter) Tenants() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
