package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	c := newClock()
	l := ratelimit.NewMemoryLimiter(ratelimit.WithMemoryClock(c.now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "auth:ip:1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "hit %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "auth:ip:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, c.now().Add(time.Minute), d.ResetAt)

	// Other keys are independent.
	d, err = l.Allow(ctx, "auth:ip:5.6.7.8", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	c.advance(time.Minute)
	d, err = l.Allow(ctx, "auth:ip:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "new window")
	assert.Equal(t, 4, d.Remaining)
}

func TestMemoryLimiter_DisabledLimit(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	for i := 0; i < 100; i++ {
		d, err := l.Allow(context.Background(), "k", 0, time.Second)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestMemoryLimiter_Capacity(t *testing.T) {
	c := newClock()
	l := ratelimit.NewMemoryLimiter(ratelimit.WithMemoryClock(c.now), ratelimit.WithMaxKeys(2))
	ctx := context.Background()

	_, err := l.Allow(ctx, "a", 1, time.Second)
	require.NoError(t, err)
	c.advance(100 * time.Millisecond)
	_, err = l.Allow(ctx, "b", 1, time.Second)
	require.NoError(t, err)

	// A full table still limits new keys.
	d, err := l.Allow(ctx, "c", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "c", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// "a" reset first, so it was evicted; "b" kept its count.
	d, err = l.Allow(ctx, "b", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	d, err = l.Allow(ctx, "a", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared", 10, time.Minute)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, ratelimit.Decision{ResetAt: now.Add(30 * time.Second)}.RetryAfter(now))
	assert.Equal(t, 2, ratelimit.Decision{ResetAt: now.Add(1500 * time.Millisecond)}.RetryAfter(now))
	assert.Equal(t, 1, ratelimit.Decision{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
}
