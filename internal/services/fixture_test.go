package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketchat/internal/domain/persona"
	"marketchat/internal/events"
	"marketchat/internal/repository"
	"marketchat/internal/repository/memory"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem     *memory.Store
	store   *repository.Store
	bus     *events.LocalBus
	student persona.Persona
	vendor  persona.Persona
	shop    persona.Persona
	sleeps  *sleepRecorder
	rooms   *RoomService
	dir     *RoomDirectory
	msgs    *MessageService
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	student := persona.Profile{ID: uuid.New(), AuthUID: "student-uid", DisplayName: "Ada", CreatedAt: base}
	vendor := persona.Profile{ID: uuid.New(), AuthUID: "vendor-uid", DisplayName: "Grace", CreatedAt: base}
	shop := persona.Shop{ID: uuid.New(), OwnerUID: "vendor-uid", OwnerProfileID: vendor.ID, Name: "Campus Books", CreatedAt: base}
	mem.AddProfile(student)
	mem.AddProfile(vendor)
	mem.AddShop(shop)

	store := mem.Repositories()
	bus := events.NewLocalBus()
	l := logger.Nop()

	rec := &sleepRecorder{}
	linker := NewMembershipLinker(store.Memberships, DefaultLinkAttempts, DefaultLinkBackoff, l)
	linker.SetSleep(rec.sleep)

	return &fixture{
		mem:     mem,
		store:   store,
		bus:     bus,
		student: student.Persona(),
		vendor:  vendor.Persona(),
		shop:    shop.Persona(),
		sleeps:  rec,
		rooms:   NewRoomService(store.Personas, store.Rooms, linker, NewEventPublisher(bus, l), l),
		dir:     NewRoomDirectory(store.Personas, store.Memberships, store.Rooms, l),
		msgs:    NewMessageService(store.Rooms, store.Messages, bus, l),
	}
}

func (f *fixture) room(t *testing.T, a, b persona.Persona) uuid.UUID {
	t.Helper()
	id, err := f.rooms.EnsureRoom(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	return id
}

// clock returns a now func that advances one second per call.
func clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
