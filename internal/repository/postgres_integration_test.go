//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"
	"marketchat/internal/events"
	"marketchat/internal/repository"
	"marketchat/internal/services"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Run with: go test -tags=integration -timeout 180s ./internal/repository/...

type pgWorld struct {
	db      *sql.DB
	store   *repository.Store
	student persona.Persona
	shop    persona.Persona
}

func startPostgres(t *testing.T) *pgWorld {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("marketchat"),
		postgres.WithUsername("marketchat"),
		postgres.WithPassword("marketchat"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			log.Printf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.InitSchema(ctx, db))

	store := repository.NewPostgresStore(db)
	now := time.Now().UTC()
	student := persona.Profile{ID: persona.ProfileIDFor("student-uid"), AuthUID: "student-uid", DisplayName: "Ada", CreatedAt: now, UpdatedAt: now}
	vendor := persona.Profile{ID: persona.ProfileIDFor("vendor-uid"), AuthUID: "vendor-uid", DisplayName: "Grace", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Personas.CreateProfile(ctx, student))
	require.NoError(t, store.Personas.CreateProfile(ctx, vendor))

	shopID := uuid.New()
	_, err = db.ExecContext(ctx, `
		INSERT INTO shops (id, owner_uid, owner_profile_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`, shopID, "vendor-uid", vendor.ID, "Campus Books", now)
	require.NoError(t, err)
	shop, err := store.Personas.GetPersona(ctx, shopID)
	require.NoError(t, err)

	return &pgWorld{db: db, store: store, student: student.Persona(), shop: shop}
}

func (w *pgWorld) newRoom(a, b persona.Persona) room.Room {
	now := time.Now().UTC()
	return room.Room{
		ID:           uuid.New(),
		ParticipantA: a.ID,
		ParticipantB: b.ID,
		NameA:        a.DisplayName,
		NameB:        b.DisplayName,
		ChatType:     room.DeriveChatType(a.Kind, b.Kind),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresMembershipAppendIsIdempotent(t *testing.T) {
	w := startPostgres(t)
	ctx := context.Background()
	roomID := uuid.New()

	for _, p := range []persona.Persona{w.student, w.shop} {
		ok, err := w.store.Memberships.Contains(ctx, p.Ref(), roomID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, w.store.Memberships.Append(ctx, p.Ref(), roomID))
		require.NoError(t, w.store.Memberships.Append(ctx, p.Ref(), roomID))

		ok, err = w.store.Memberships.Contains(ctx, p.Ref(), roomID)
		require.NoError(t, err)
		assert.True(t, ok)

		rooms, err := w.store.Memberships.Rooms(ctx, p.Ref())
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{roomID}, rooms)
	}

	missing := persona.Ref{ID: uuid.New(), Kind: persona.KindShop}
	assert.ErrorIs(t, w.store.Memberships.Append(ctx, missing, roomID), marketchat_errors.ErrNotFound)
	_, err := w.store.Memberships.Contains(ctx, missing, roomID)
	assert.ErrorIs(t, err, marketchat_errors.ErrNotFound)
}

func TestPostgresRoomPairIsUnique(t *testing.T) {
	w := startPostgres(t)
	ctx := context.Background()

	first := w.newRoom(w.student, w.shop)
	require.NoError(t, w.store.Rooms.Create(ctx, first))

	// Same pair, reversed: the LEAST/GREATEST index rejects it.
	reversed := w.newRoom(w.shop, w.student)
	assert.ErrorIs(t, w.store.Rooms.Create(ctx, reversed), marketchat_errors.ErrAlreadyExists)

	for _, pair := range [][2]uuid.UUID{{w.student.ID, w.shop.ID}, {w.shop.ID, w.student.ID}} {
		found, err := w.store.Rooms.FindByPair(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	}

	_, err := w.store.Rooms.FindByPair(ctx, w.student.ID, uuid.New())
	assert.ErrorIs(t, err, marketchat_errors.ErrNotFound)
}

func TestPostgresEnsureRoomDeduplicatesBothOrders(t *testing.T) {
	w := startPostgres(t)
	ctx := context.Background()
	l := logger.Nop()
	linker := services.NewMembershipLinker(w.store.Memberships, 3, 0, l)
	rooms := services.NewRoomService(w.store.Personas, w.store.Rooms, linker, services.NewEventPublisher(events.NewLocalBus(), l), l)

	a, err := rooms.EnsureRoom(ctx, w.student.ID, w.shop.ID)
	require.NoError(t, err)
	b, err := rooms.EnsureRoom(ctx, w.shop.ID, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var count int
	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT count(*) FROM chat_rooms`).Scan(&count))
	assert.Equal(t, 1, count)

	for _, p := range []persona.Persona{w.student, w.shop} {
		ids, err := w.store.Memberships.Rooms(ctx, p.Ref())
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a}, ids)
	}
}

func TestPostgresUnreadAndMarkReadIdempotence(t *testing.T) {
	w := startPostgres(t)
	ctx := context.Background()
	rm := w.newRoom(w.student, w.shop)
	require.NoError(t, w.store.Rooms.Create(ctx, rm))

	msgs := services.NewMessageService(w.store.Rooms, w.store.Messages, events.NewLocalBus(), logger.Nop())
	for _, text := range []string{"hi", "is it still for sale?"} {
		_, err := msgs.Send(ctx, rm.ID, w.student.ID, message.Content{Text: text})
		require.NoError(t, err)
	}

	got, err := w.store.Rooms.GetByID(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCount)
	assert.Equal(t, 2, got.UnreadFor(w.shop.ID))
	assert.Equal(t, 0, got.UnreadFor(w.student.ID))
	assert.Equal(t, "is it still for sale?", got.LastMessage)

	// A reply from the other side restarts the counter.
	_, err = msgs.Send(ctx, rm.ID, w.shop.ID, message.Content{Text: "yes"})
	require.NoError(t, err)
	got, err = w.store.Rooms.GetByID(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)
	assert.Equal(t, w.shop.ID, got.LastSenderID.UUID)

	n, err := msgs.MarkRead(ctx, rm.ID, w.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = msgs.MarkRead(ctx, rm.ID, w.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	history, err := w.store.Messages.ListByRoom(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, m := range history {
		if m.SenderID == w.student.ID {
			assert.True(t, m.IsRead)
			assert.True(t, m.Delivered)
		} else {
			assert.False(t, m.IsRead)
		}
	}
}
