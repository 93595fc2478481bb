package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	g := New(Config{})
	status := g.Status()

	assert.Equal(t, float64(1), status.Capacity)
	assert.Equal(t, time.Second, status.Interval)
}

func TestGovernor_SpacesSequentialCalls(t *testing.T) {
	// 600/min with burst 1 means one permit every 100ms.
	g := New(Config{RequestsPerMinute: 600, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first permit is immediate")

	require.NoError(t, g.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "second permit waits for refill")
}

func TestGovernor_BurstIsImmediate(t *testing.T) {
	g := New(Config{RequestsPerMinute: 60, Burst: 3})

	assert.True(t, g.Allow())
	assert.True(t, g.Allow())
	assert.True(t, g.Allow())
	assert.False(t, g.Allow())
}

func TestGovernor_WaitHonoursContext(t *testing.T) {
	g := New(Config{RequestsPerMinute: 1, Burst: 1})
	require.True(t, g.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, g.Status().Waiting)
}

func TestGovernor_RefillIsCapped(t *testing.T) {
	clock := time.Unix(0, 0)
	g := New(Config{RequestsPerMinute: 60, Burst: 2})
	g.now = func() time.Time { return clock }
	g.last = clock

	require.True(t, g.Allow())
	require.True(t, g.Allow())
	require.False(t, g.Allow())

	clock = clock.Add(10 * time.Second)
	assert.Equal(t, float64(2), g.Status().Available)
}
