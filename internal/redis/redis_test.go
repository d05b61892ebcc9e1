package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	_, client := newTestClient(t)
	limiter := NewRateLimiter(client, RateLimitConfig{MessageLimit: 2, MessageWindow: time.Minute, CallLimit: 1, CallWindow: time.Minute})
	ctx := context.Background()
	persona := uuid.NewString()

	first, err := limiter.AllowMessage(ctx, persona)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, err := limiter.AllowMessage(ctx, persona)
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.AllowMessage(ctx, persona)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 2, third.Limit)

	// Calls are counted separately.
	call, err := limiter.AllowCall(ctx, persona)
	require.NoError(t, err)
	assert.True(t, call.Allowed)

	require.NoError(t, limiter.ResetPersona(ctx, persona))
	again, err := limiter.AllowMessage(ctx, persona)
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

func TestCallSlotStore(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewCallSlotStore(client)
	ctx := context.Background()
	roomID, first, second := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, store.Claim(ctx, roomID, first, time.Minute))
	assert.ErrorIs(t, store.Claim(ctx, roomID, second, time.Minute), ErrSlotTaken)

	holder, err := store.Holder(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, first, holder)

	// Only the holder may release.
	require.NoError(t, store.Release(ctx, roomID, second))
	holder, _ = store.Holder(ctx, roomID)
	assert.Equal(t, first, holder)

	require.NoError(t, store.Release(ctx, roomID, first))
	holder, _ = store.Holder(ctx, roomID)
	assert.Equal(t, uuid.Nil, holder)

	// Slots expire.
	require.NoError(t, store.Claim(ctx, roomID, second, time.Second))
	mr.FastForward(2 * time.Second)
	require.NoError(t, store.Claim(ctx, roomID, first, time.Minute))
}

func TestPresenceStore(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewPresenceStore(client, 10*time.Second)
	ctx := context.Background()
	id := uuid.New()

	online, err := store.IsOnline(ctx, id)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, store.Touch(ctx, id))
	online, _ = store.IsOnline(ctx, id)
	assert.True(t, online)

	mr.FastForward(11 * time.Second)
	online, _ = store.IsOnline(ctx, id)
	assert.False(t, online)

	require.NoError(t, store.Touch(ctx, id))
	require.NoError(t, store.Clear(ctx, id))
	online, _ = store.IsOnline(ctx, id)
	assert.False(t, online)
}
