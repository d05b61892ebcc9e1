package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketchat/internal/domain/room"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countOf(ids []uuid.UUID, want uuid.UUID) int {
	n := 0
	for _, id := range ids {
		if id == want {
			n++
		}
	}
	return n
}

func TestEnsureRoomIsIdempotentInEitherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rooms.EnsureRoom(ctx, f.student.ID, f.shop.ID)
	require.NoError(t, err)
	second, err := f.rooms.EnsureRoom(ctx, f.shop.ID, f.student.ID)
	require.NoError(t, err)
	third, err := f.rooms.EnsureRoom(ctx, f.student.ID, f.shop.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, f.mem.RoomCount())
	assert.Equal(t, 1, countOf(f.mem.Memberships(f.student.ID), first))
	assert.Equal(t, 1, countOf(f.mem.Memberships(f.shop.ID), first))

	rm, ok := f.mem.Room(first)
	require.True(t, ok)
	assert.Equal(t, room.ChatTypeUserVendor, rm.ChatType)
	assert.Equal(t, "Ada", rm.NameA)
	assert.Equal(t, "Campus Books", rm.NameB)
}

func TestEnsureRoomRejectsSelfAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rooms.EnsureRoom(ctx, f.student.ID, f.student.ID)
	assert.ErrorIs(t, err, marketchat_errors.ErrInvalidInput)

	_, err = f.rooms.EnsureRoom(ctx, f.student.ID, uuid.New())
	assert.ErrorIs(t, err, marketchat_errors.ErrNotFound)
	assert.Equal(t, 0, f.mem.RoomCount())
}

func TestEnsureRoomRetriesDroppedAppend(t *testing.T) {
	f := newFixture(t)
	f.mem.DropAppends(f.shop.ID, 2)

	id, err := f.rooms.EnsureRoom(context.Background(), f.student.ID, f.shop.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, countOf(f.mem.Memberships(f.shop.ID), id))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, f.sleeps.recorded())
}

func TestEnsureRoomReportsPartialLink(t *testing.T) {
	f := newFixture(t)
	f.mem.FailAppends(f.shop.ID, 3)
	ctx := context.Background()

	id, err := f.rooms.EnsureRoom(ctx, f.student.ID, f.shop.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, marketchat_errors.ErrPartialLink))
	assert.True(t, errors.Is(err, marketchat_errors.ErrTransientStore))

	var partial *marketchat_errors.PartialLinkError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, id, partial.RoomID)
	assert.Equal(t, []uuid.UUID{f.shop.ID}, partial.Unlinked)
	assert.NotEqual(t, uuid.Nil, id)

	assert.Equal(t, 1, countOf(f.mem.Memberships(f.student.ID), id))
	assert.Empty(t, f.mem.Memberships(f.shop.ID))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, f.sleeps.recorded())

	// A later call repairs the missing side without a second room.
	again, err := f.rooms.EnsureRoom(ctx, f.shop.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, f.mem.RoomCount())
	assert.Equal(t, 1, countOf(f.mem.Memberships(f.shop.ID), id))
}

func TestMembershipLinkerHonorsContext(t *testing.T) {
	f := newFixture(t)
	f.mem.FailAppends(f.student.ID, 5)
	linker := NewMembershipLinker(f.store.Memberships, 3, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := linker.Link(ctx, f.student.Ref(), uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.room(t, f.student, f.vendor)

	ok, err := VerifyMembership(ctx, f.store.Memberships, f.student.Ref(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyMembership(ctx, f.store.Memberships, f.shop.Ref(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureRoomPublishesRoomCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.bus.Subscribe(ctx, "channel:persona:"+f.shop.ID.String())
	require.NoError(t, err)
	defer sub.Close()

	id := f.room(t, f.student, f.shop)

	select {
	case env := <-sub.Events():
		assert.Equal(t, "room.created", env.EventType)
		assert.Equal(t, id.String(), env.AggregateID)
	case <-time.After(time.Second):
		t.Fatal("no room.created event")
	}
}
