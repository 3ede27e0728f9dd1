package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	unlock, ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held")

	_, ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, unlock(ctx))
	again, ok, _ := l.TryLock(ctx, "sweep", time.Minute)
	require.True(t, ok)

	// An expired lease can be taken over, and the stale unlock must not
	// release the new holder.
	now = now.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(ctx, "sweep", time.Minute)
	require.True(t, ok)
	require.NoError(t, again(ctx))
	_, ok, _ = l.TryLock(ctx, "sweep", time.Minute)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "storefront:expiry-sweep:global", Key("storefront", "expiry-sweep", "global"))
}
