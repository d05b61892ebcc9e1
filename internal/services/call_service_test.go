package services

import (
	"context"
	"testing"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/redis"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallService(t *testing.T, f *fixture) (*CallService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCallService(f.store.Rooms, f.store.Calls, redis.NewCallSlotStore(client), nil, f.bus, 0, logger.Nop()), mr
}

func TestCallLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.shop)
	svc, mr := newCallService(t, f)
	assert.Equal(t, call.RingTimeout, svc.RingTimeout())

	stream, err := svc.SubscribeCalls(ctx, id)
	require.NoError(t, err)
	defer stream.Close()

	sig, err := svc.Start(ctx, id, f.student.ID, "")
	require.NoError(t, err)
	assert.Equal(t, call.StatusRinging, sig.Status)
	assert.Equal(t, call.TypeVoice, sig.CallType)
	assert.Equal(t, f.shop.ID, sig.ReceiverID)
	assert.True(t, mr.Exists("call:active:"+id.String()))

	select {
	case got := <-stream.Signals():
		assert.Equal(t, sig.ID, got.ID)
		assert.Equal(t, call.StatusRinging, got.Status)
	case <-time.After(time.Second):
		t.Fatal("no ringing signal")
	}

	// Only the receiver answers.
	_, err = svc.Answer(ctx, sig.ID, f.student.ID)
	assert.ErrorIs(t, err, marketchat_errors.ErrForbidden)

	connected, err := svc.Answer(ctx, sig.ID, f.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusConnected, connected.Status)
	assert.NotNil(t, connected.ConnectedAt)

	_, err = svc.Answer(ctx, sig.ID, f.shop.ID)
	assert.ErrorIs(t, err, marketchat_errors.ErrInvalidTransition)

	ended, err := svc.End(ctx, sig.ID, f.student.ID, "")
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, ended.Status)
	assert.Equal(t, call.EndReasonCompleted, ended.EndReason)
	assert.False(t, mr.Exists("call:active:"+id.String()))

	_, err = svc.End(ctx, sig.ID, f.student.ID, "")
	assert.ErrorIs(t, err, marketchat_errors.ErrInvalidTransition)
}

func TestCallOneActivePerRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.shop)
	svc, _ := newCallService(t, f)

	first, err := svc.Start(ctx, id, f.student.ID, call.TypeVideo)
	require.NoError(t, err)

	_, err = svc.Start(ctx, id, f.shop.ID, call.TypeVoice)
	assert.ErrorIs(t, err, marketchat_errors.ErrConflict)

	declined, err := svc.End(ctx, first.ID, f.shop.ID, "")
	require.NoError(t, err)
	assert.Equal(t, call.EndReasonDeclined, declined.EndReason)

	second, err := svc.Start(ctx, id, f.shop.ID, call.TypeVoice)
	require.NoError(t, err)
	cancelled, err := svc.End(ctx, second.ID, f.shop.ID, "")
	require.NoError(t, err)
	assert.Equal(t, call.EndReasonCancelled, cancelled.EndReason)
}

func TestCallInputChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.shop)
	svc, _ := newCallService(t, f)

	_, err := svc.Start(ctx, id, f.student.ID, call.Type("hologram"))
	assert.ErrorIs(t, err, marketchat_errors.ErrInvalidInput)

	_, err = svc.Start(ctx, id, f.vendor.ID, call.TypeVoice)
	assert.ErrorIs(t, err, marketchat_errors.ErrForbidden)

	sig, err := svc.Start(ctx, id, f.student.ID, call.TypeVoice)
	require.NoError(t, err)
	_, err = svc.End(ctx, sig.ID, f.vendor.ID, "")
	assert.ErrorIs(t, err, marketchat_errors.ErrForbidden)
	_, err = svc.End(ctx, sig.ID, f.student.ID, "hung-up-angrily")
	assert.ErrorIs(t, err, marketchat_errors.ErrInvalidInput)
	_, err = svc.Answer(ctx, uuid.New(), f.shop.ID)
	assert.ErrorIs(t, err, marketchat_errors.ErrNotFound)
}

func TestStaleRingingCallIsEndedAsMissed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.shop)
	svc := NewCallService(f.store.Rooms, f.store.Calls, nil, nil, f.bus, time.Second, logger.Nop())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	abandoned, err := svc.Start(ctx, id, f.student.ID, call.TypeVoice)
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(2 * time.Second) }
	_, err = svc.Start(ctx, id, f.shop.ID, call.TypeVoice)
	assert.ErrorIs(t, err, marketchat_errors.ErrConflict)

	svc.now = func() time.Time { return start.Add(time.Minute) }
	fresh, err := svc.Start(ctx, id, f.shop.ID, call.TypeVoice)
	require.NoError(t, err)
	assert.NotEqual(t, abandoned.ID, fresh.ID)

	old, err := f.store.Calls.GetByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusEnded, old.Status)
	assert.Equal(t, call.EndReasonMissed, old.EndReason)
}

func TestCallRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.shop)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	limiter := redis.NewRateLimiter(client, redis.RateLimitConfig{MessageLimit: 10, MessageWindow: time.Minute, CallLimit: 1, CallWindow: time.Minute})
	svc := NewCallService(f.store.Rooms, f.store.Calls, redis.NewCallSlotStore(client), limiter, f.bus, 0, logger.Nop())

	sig, err := svc.Start(ctx, id, f.student.ID, call.TypeVoice)
	require.NoError(t, err)
	_, err = svc.End(ctx, sig.ID, f.student.ID, "")
	require.NoError(t, err)

	_, err = svc.Start(ctx, id, f.student.ID, call.TypeVoice)
	assert.ErrorIs(t, err, marketchat_errors.ErrRateLimited)
}
