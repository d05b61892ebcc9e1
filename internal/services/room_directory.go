package services

import (
	"context"
	"errors"

	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

// RoomDirectory lists the rooms a persona participates in.
type RoomDirectory struct {
	personas repository.PersonaRepository
	members  repository.MembershipRepository
	rooms    repository.RoomRepository
	log      *logger.Logger
}

func NewRoomDirectory(personas repository.PersonaRepository, members repository.MembershipRepository, rooms repository.RoomRepository, l *logger.Logger) *RoomDirectory {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &RoomDirectory{personas: personas, members: members, rooms: rooms, log: l}
}

// ListRooms returns the persona's room summaries sorted by sortBy. The
// membership index decides which rooms are listed; rooms fetched outside it
// are dropped.
func (d *RoomDirectory) ListRooms(ctx context.Context, p persona.Persona, sortBy room.SortBy) ([]room.Summary, error) {
	ids, err := d.members.Rooms(ctx, p.Ref())
	if errors.Is(err, marketchat_errors.ErrNotFound) {
		return []room.Summary{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []room.Summary{}, nil
	}

	rooms, err := d.rooms.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	kept := rooms[:0]
	others := make([]uuid.UUID, 0, len(rooms))
	for _, rm := range rooms {
		if !wanted[rm.ID] {
			continue
		}
		other, ok := rm.Counterpart(p.ID)
		if !ok {
			d.log.Ctx(ctx).Sugar().Warnf("room %s indexed for %s who is not a participant", rm.ID, p.ID)
			continue
		}
		wanted[rm.ID] = false
		kept = append(kept, rm)
		others = append(others, other)
	}

	kinds, err := d.personas.Kinds(ctx, uniqueIDs(others))
	if err != nil {
		d.log.Ctx(ctx).Sugar().Warnf("counterpart kind lookup failed, inferring from chat type: %v", err)
		kinds = nil
	}

	summaries := make([]room.Summary, 0, len(kept))
	for i, rm := range kept {
		kind, ok := kinds[others[i]]
		if !ok {
			kind = inferCounterpartKind(rm.ChatType, p.Kind)
		}
		if s, ok := room.Summarize(rm, p.ID, kind); ok {
			summaries = append(summaries, s)
		}
	}
	room.SortSummaries(summaries, sortBy)
	return summaries, nil
}

// inferCounterpartKind is the fallback when the counterpart row cannot be
// read. It is only exact for user_user and vendor_vendor rooms.
func inferCounterpartKind(t room.ChatType, self persona.Kind) persona.Kind {
	switch t {
	case room.ChatTypeUserUser:
		return persona.KindIndividual
	case room.ChatTypeVendorVendor:
		return persona.KindShop
	}
	if self == persona.KindShop {
		return persona.KindIndividual
	}
	return persona.KindShop
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// FilterRooms keeps summaries whose counterpart name or last message
// contains query, ignoring case. An empty query keeps everything.
func FilterRooms(list []room.Summary, query string) []room.Summary {
	return room.Filter(list, query)
}
