package repository

import (
	"context"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"

	"github.com/google/uuid"
)

// PersonaRepository reads and creates the rows personas are built from.
// Lookups that find nothing return ErrNotFound.
type PersonaRepository interface {
	GetProfileByAuthUID(ctx context.Context, authUID string) (persona.Profile, error)
	CreateProfile(ctx context.Context, p persona.Profile) error
	ListShopsByOwner(ctx context.Context, ownerUID string) ([]persona.Shop, error)
	// GetPersona resolves any persona id, profile or shop.
	GetPersona(ctx context.Context, id uuid.UUID) (persona.Persona, error)
	// Kinds resolves the kind of each known id. Unknown ids are omitted.
	Kinds(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]persona.Kind, error)
}

// MembershipRepository maintains the per-persona room index.
type MembershipRepository interface {
	Rooms(ctx context.Context, ref persona.Ref) ([]uuid.UUID, error)
	// Append adds roomID to the index unless it is already present.
	Append(ctx context.Context, ref persona.Ref, roomID uuid.UUID) error
	Contains(ctx context.Context, ref persona.Ref, roomID uuid.UUID) (bool, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r room.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (room.Room, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]room.Room, error)
	// FindByPair checks both participant orderings.
	FindByPair(ctx context.Context, a, b uuid.UUID) (room.Room, error)
	// RecordMessage updates the rolling summary after a send.
	RecordMessage(ctx context.Context, roomID, senderID uuid.UUID, preview string, at time.Time) error
	// ResetUnread zeroes the counter if reader is not the last sender and it
	// is non-zero. Returns whether a row changed.
	ResetUnread(ctx context.Context, roomID, readerID uuid.UUID) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	// ListByRoom returns messages ascending by creation time.
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]message.Message, error)
	// MarkRead flags every unread message in the room not sent by readerID.
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error)
	MarkDelivered(ctx context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error)
	// OwnedBy filters ids down to messages in the room sent by senderID.
	OwnedBy(ctx context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	DeleteOwned(ctx context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) (int, error)
}

type CallRepository interface {
	Create(ctx context.Context, s call.Signal) error
	GetByID(ctx context.Context, id uuid.UUID) (call.Signal, error)
	// UpdateStatus moves a call from one status to another. Returns
	// ErrInvalidTransition if the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to call.Status, reason string, at time.Time) (call.Signal, error)
	ActiveForRoom(ctx context.Context, roomID uuid.UUID) (call.Signal, error)
}

// Store bundles every repository backed by one database.
type Store struct {
	Personas    PersonaRepository
	Memberships MembershipRepository
	Rooms       RoomRepository
	Messages    MessageRepository
	Calls       CallRepository
}
