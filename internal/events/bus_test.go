package events

import (
	"context"
	"testing"
	"time"

	"marketchat/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Events():
		require.True(t, ok, "subscription closed early")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Envelope{}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

func testBus(t *testing.T, bus Bus) {
	ctx := context.Background()
	roomID := uuid.New()
	channel := RoomMessagesChannel(roomID)

	sub, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)

	env, err := NewEnvelope(EventTypeMessageCreated, AggregateTypeMessage, roomID.String(), map[string]string{"text": "hi"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, channel, env))

	got := receive(t, sub)
	assert.Equal(t, EventTypeMessageCreated, got.EventType)
	var payload map[string]string
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "hi", payload["text"])

	sub.Close()
	waitClosed(t, sub)

	// A fresh subscription after teardown works.
	again, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer again.Close()
	require.NoError(t, bus.Publish(ctx, channel, env))
	assert.Equal(t, env.AggregateID, receive(t, again).AggregateID)
}

func TestLocalBus(t *testing.T) {
	testBus(t, NewLocalBus())
}

func TestLocalBusContextCancelUnsubscribes(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	channel := RoomCallsChannel(uuid.New())

	sub, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers(channel))

	cancel()
	waitClosed(t, sub)
	assert.Equal(t, 0, bus.Subscribers(channel))
}

func TestRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	testBus(t, NewRedisBus(client, logger.Nop()))
}

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "channel:room:11111111-1111-1111-1111-111111111111:messages", RoomMessagesChannel(id))
	assert.Equal(t, "channel:room:11111111-1111-1111-1111-111111111111:calls", RoomCallsChannel(id))
	assert.Equal(t, "channel:persona:11111111-1111-1111-1111-111111111111", PersonaChannel(id))
}
