package services

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"
	"marketchat/internal/events"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

type RoomService struct {
	personas  repository.PersonaRepository
	rooms     repository.RoomRepository
	linker    *MembershipLinker
	publisher *EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewRoomService(personas repository.PersonaRepository, rooms repository.RoomRepository, linker *MembershipLinker, publisher *EventPublisher, l *logger.Logger) *RoomService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &RoomService{personas: personas, rooms: rooms, linker: linker, publisher: publisher, log: l, now: time.Now}
}

// EnsureRoom returns the room between self and counterpart, creating it if
// needed, and makes sure both membership indexes list it. Calling it again
// for the same pair in either order returns the same room. When linking
// fails the room id is still returned together with a *PartialLinkError.
func (s *RoomService) EnsureRoom(ctx context.Context, selfID, counterpartID uuid.UUID) (uuid.UUID, error) {
	if selfID == uuid.Nil || counterpartID == uuid.Nil || selfID == counterpartID {
		return uuid.Nil, marketchat_errors.ErrInvalidInput
	}
	self, err := s.personas.GetPersona(ctx, selfID)
	if err != nil {
		return uuid.Nil, err
	}
	other, err := s.personas.GetPersona(ctx, counterpartID)
	if err != nil {
		return uuid.Nil, err
	}

	rm, created, err := s.findOrCreate(ctx, self, other)
	if err != nil {
		return uuid.Nil, err
	}

	var unlinked []uuid.UUID
	var linkErr error
	for _, p := range []persona.Persona{self, other} {
		if err := s.linker.Link(ctx, p.Ref(), rm.ID); err != nil {
			s.log.Ctx(ctx).Sugar().Errorf("room %s not linked to %s: %v", rm.ID, p.ID, err)
			unlinked = append(unlinked, p.ID)
			linkErr = err
		}
	}
	if len(unlinked) > 0 {
		return rm.ID, &marketchat_errors.PartialLinkError{RoomID: rm.ID, Unlinked: unlinked, Err: linkErr}
	}

	if created {
		for _, p := range []persona.Persona{self, other} {
			s.publisher.publish(ctx, events.PersonaChannel(p.ID), events.EventTypeRoomCreated, events.AggregateTypeRoom, rm.ID, roomEventPayload{RoomID: rm.ID})
		}
	}
	return rm.ID, nil
}

func (s *RoomService) findOrCreate(ctx context.Context, self, other persona.Persona) (room.Room, bool, error) {
	rm, err := s.rooms.FindByPair(ctx, self.ID, other.ID)
	if err == nil {
		return rm, false, nil
	}
	if !errors.Is(err, marketchat_errors.ErrNotFound) {
		return room.Room{}, false, err
	}

	now := s.now().UTC()
	rm = room.Room{
		ID:           uuid.New(),
		ParticipantA: self.ID,
		ParticipantB: other.ID,
		NameA:        self.DisplayName,
		AvatarA:      self.AvatarURL,
		NameB:        other.DisplayName,
		AvatarB:      other.AvatarURL,
		ChatType:     room.DeriveChatType(self.Kind, other.Kind),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.rooms.Create(ctx, rm)
	if err == nil {
		return rm, true, nil
	}
	if !errors.Is(err, marketchat_errors.ErrAlreadyExists) {
		return room.Room{}, false, err
	}
	// Lost a creation race; reuse the winner.
	rm, err = s.rooms.FindByPair(ctx, self.ID, other.ID)
	if err != nil {
		return room.Room{}, false, err
	}
	return rm, false, nil
}

// Get returns the room if viewer participates in it.
func (s *RoomService) Get(ctx context.Context, roomID, viewerID uuid.UUID) (room.Room, error) {
	return participantRoom(ctx, s.rooms, roomID, viewerID)
}

type roomEventPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

func participantRoom(ctx context.Context, rooms repository.RoomRepository, roomID, personaID uuid.UUID) (room.Room, error) {
	rm, err := rooms.GetByID(ctx, roomID)
	if err != nil {
		return room.Room{}, err
	}
	if !rm.HasParticipant(personaID) {
		return room.Room{}, marketchat_errors.ErrForbidden
	}
	return rm, nil
}
