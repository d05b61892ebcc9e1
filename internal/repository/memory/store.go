// Package memory is an in-process implementation of the repository
// interfaces. It backs the memory store driver and the service tests, and
// can inject dropped or failed membership writes.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

var errInjected = errors.New("injected write failure")

type Store struct {
	mu sync.Mutex

	profiles map[uuid.UUID]*persona.Profile
	byAuth   map[string]uuid.UUID
	shops    map[uuid.UUID]*persona.Shop
	rooms    map[uuid.UUID]room.Room
	messages map[uuid.UUID]message.Message
	seq      map[uuid.UUID]int64
	nextSeq  int64
	calls    map[uuid.UUID]call.Signal

	mutations   int
	dropAppends map[uuid.UUID]int
	failAppends map[uuid.UUID]int
	profileErr  error
	shopErr     error
}

func New() *Store {
	return &Store{
		profiles:    make(map[uuid.UUID]*persona.Profile),
		byAuth:      make(map[string]uuid.UUID),
		shops:       make(map[uuid.UUID]*persona.Shop),
		rooms:       make(map[uuid.UUID]room.Room),
		messages:    make(map[uuid.UUID]message.Message),
		seq:         make(map[uuid.UUID]int64),
		calls:       make(map[uuid.UUID]call.Signal),
		dropAppends: make(map[uuid.UUID]int),
		failAppends: make(map[uuid.UUID]int),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Personas:    personaRepo{s},
		Memberships: membershipRepo{s},
		Rooms:       roomRepo{s},
		Messages:    messageRepo{s},
		Calls:       callRepo{s},
	}
}

// AddProfile inserts a profile directly, bypassing mutation counting.
func (s *Store) AddProfile(p persona.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.ID] = &cp
	s.byAuth[p.AuthUID] = p.ID
}

func (s *Store) AddShop(sh persona.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sh
	s.shops[sh.ID] = &cp
}

// Mutations counts writes that changed stored state.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// DropAppends makes the next n membership appends for personaID report
// success without writing.
func (s *Store) DropAppends(personaID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropAppends[personaID] = n
}

// FailAppends makes the next n membership appends for personaID fail.
func (s *Store) FailAppends(personaID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppends[personaID] = n
}

// FailProfiles makes profile reads fail with err until cleared with nil.
func (s *Store) FailProfiles(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileErr = err
}

// FailShops makes shop enumeration fail with err until cleared with nil.
func (s *Store) FailShops(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shopErr = err
}

func (s *Store) Room(id uuid.UUID) (room.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) chatRooms(id uuid.UUID) (*[]uuid.UUID, bool) {
	if p, ok := s.profiles[id]; ok {
		return &p.ChatRooms, true
	}
	if sh, ok := s.shops[id]; ok {
		return &sh.ChatRooms, true
	}
	return nil, false
}

// Memberships returns a copy of the persona's room index.
func (s *Store) Memberships(personaID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.chatRooms(personaID)
	if !ok {
		return nil
	}
	return append([]uuid.UUID(nil), (*list)...)
}

type personaRepo struct{ s *Store }

func (r personaRepo) GetProfileByAuthUID(_ context.Context, authUID string) (persona.Profile, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileErr != nil {
		return persona.Profile{}, marketchat_errors.Transient("get profile", s.profileErr)
	}
	id, ok := s.byAuth[authUID]
	if !ok {
		return persona.Profile{}, marketchat_errors.ErrNotFound
	}
	return *s.profiles[id], nil
}

func (r personaRepo) CreateProfile(_ context.Context, p persona.Profile) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileErr != nil {
		return marketchat_errors.Transient("create profile", s.profileErr)
	}
	if _, ok := s.byAuth[p.AuthUID]; ok {
		return marketchat_errors.ErrAlreadyExists
	}
	if _, ok := s.profiles[p.ID]; ok {
		return marketchat_errors.ErrAlreadyExists
	}
	cp := p
	s.profiles[p.ID] = &cp
	s.byAuth[p.AuthUID] = p.ID
	s.mutations++
	return nil
}

func (r personaRepo) ListShopsByOwner(_ context.Context, ownerUID string) ([]persona.Shop, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shopErr != nil {
		return nil, marketchat_errors.Transient("list shops", s.shopErr)
	}
	var out []persona.Shop
	for _, sh := range s.shops {
		if sh.OwnerUID == ownerUID {
			out = append(out, *sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r personaRepo) GetPersona(_ context.Context, id uuid.UUID) (persona.Persona, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		return p.Persona(), nil
	}
	if sh, ok := s.shops[id]; ok {
		return sh.Persona(), nil
	}
	return persona.Persona{}, marketchat_errors.ErrNotFound
}

func (r personaRepo) Kinds(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]persona.Kind, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(map[uuid.UUID]persona.Kind, len(ids))
	for _, id := range ids {
		if _, ok := s.profiles[id]; ok {
			kinds[id] = persona.KindIndividual
		} else if _, ok := s.shops[id]; ok {
			kinds[id] = persona.KindShop
		}
	}
	return kinds, nil
}

type membershipRepo struct{ s *Store }

func (r membershipRepo) Rooms(_ context.Context, ref persona.Ref) ([]uuid.UUID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.chatRooms(ref.ID)
	if !ok {
		return nil, marketchat_errors.ErrNotFound
	}
	return append([]uuid.UUID(nil), (*list)...), nil
}

func (r membershipRepo) Append(_ context.Context, ref persona.Ref, roomID uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failAppends[ref.ID]; n > 0 {
		s.failAppends[ref.ID] = n - 1
		return marketchat_errors.Transient("append membership", errInjected)
	}
	if n := s.dropAppends[ref.ID]; n > 0 {
		s.dropAppends[ref.ID] = n - 1
		return nil
	}
	list, ok := s.chatRooms(ref.ID)
	if !ok {
		return marketchat_errors.ErrNotFound
	}
	for _, id := range *list {
		if id == roomID {
			return nil
		}
	}
	*list = append(*list, roomID)
	s.mutations++
	return nil
}

func (r membershipRepo) Contains(_ context.Context, ref persona.Ref, roomID uuid.UUID) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.chatRooms(ref.ID)
	if !ok {
		return false, marketchat_errors.ErrNotFound
	}
	for _, id := range *list {
		if id == roomID {
			return true, nil
		}
	}
	return false, nil
}

type roomRepo struct{ s *Store }

func (r roomRepo) Create(_ context.Context, rm room.Room) error {
	if err := rm.Validate(); err != nil {
		return marketchat_errors.ErrInvalidInput
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[rm.ID]; ok {
		return marketchat_errors.ErrAlreadyExists
	}
	for _, existing := range s.rooms {
		if samePair(existing, rm.ParticipantA, rm.ParticipantB) {
			return marketchat_errors.ErrAlreadyExists
		}
	}
	s.rooms[rm.ID] = rm
	s.mutations++
	return nil
}

func samePair(r room.Room, a, b uuid.UUID) bool {
	return (r.ParticipantA == a && r.ParticipantB == b) || (r.ParticipantA == b && r.ParticipantB == a)
}

func (r roomRepo) GetByID(_ context.Context, id uuid.UUID) (room.Room, error) {
	rm, ok := r.s.Room(id)
	if !ok {
		return room.Room{}, marketchat_errors.ErrNotFound
	}
	return rm, nil
}

func (r roomRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]room.Room, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []room.Room
	for _, id := range ids {
		if rm, ok := s.rooms[id]; ok {
			out = append(out, rm)
		}
	}
	return out, nil
}

func (r roomRepo) FindByPair(_ context.Context, a, b uuid.UUID) (room.Room, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rm := range s.rooms {
		if samePair(rm, a, b) {
			return rm, nil
		}
	}
	return room.Room{}, marketchat_errors.ErrNotFound
}

func (r roomRepo) RecordMessage(_ context.Context, roomID, senderID uuid.UUID, preview string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomID]
	if !ok {
		return marketchat_errors.ErrNotFound
	}
	if rm.LastSenderID.Valid && rm.LastSenderID.UUID == senderID {
		rm.UnreadCount++
	} else {
		rm.UnreadCount = 1
	}
	rm.LastSenderID = uuid.NullUUID{UUID: senderID, Valid: true}
	rm.LastMessage = preview
	t := at
	rm.LastMessageAt = &t
	rm.UpdatedAt = at
	s.rooms[roomID] = rm
	s.mutations++
	return nil
}

func (r roomRepo) ResetUnread(_ context.Context, roomID, readerID uuid.UUID) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomID]
	if !ok || rm.UnreadCount == 0 {
		return false, nil
	}
	if rm.LastSenderID.Valid && rm.LastSenderID.UUID == readerID {
		return false, nil
	}
	rm.UnreadCount = 0
	s.rooms[roomID] = rm
	s.mutations++
	return true, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, m message.Message) error {
	if err := m.Validate(); err != nil {
		return marketchat_errors.ErrInvalidInput
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return marketchat_errors.ErrAlreadyExists
	}
	s.messages[m.ID] = m
	s.nextSeq++
	s.seq[m.ID] = s.nextSeq
	s.mutations++
	return nil
}

func (r messageRepo) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return message.Message{}, marketchat_errors.ErrNotFound
	}
	return m, nil
}

func (r messageRepo) ListByRoom(_ context.Context, roomID uuid.UUID) ([]message.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out, nil
}

func (r messageRepo) MarkRead(_ context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if m.RoomID != roomID || m.SenderID == readerID || m.IsRead {
			continue
		}
		t := at
		m.IsRead, m.ReadAt = true, &t
		if !m.Delivered {
			m.Delivered, m.DeliveredAt = true, &t
		}
		s.messages[id] = m
		n++
	}
	s.mutations += n
	return n, nil
}

func (r messageRepo) MarkDelivered(_ context.Context, roomID, readerID uuid.UUID, at time.Time) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.messages {
		if m.RoomID != roomID || m.SenderID == readerID || m.Delivered {
			continue
		}
		t := at
		m.Delivered, m.DeliveredAt = true, &t
		s.messages[id] = m
		n++
	}
	s.mutations += n
	return n, nil
}

func (r messageRepo) OwnedBy(_ context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var owned []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		m, ok := s.messages[id]
		if ok && !seen[id] && m.RoomID == roomID && m.SenderID == senderID {
			owned = append(owned, id)
			seen[id] = true
		}
	}
	return owned, nil
}

func (r messageRepo) DeleteOwned(_ context.Context, roomID, senderID uuid.UUID, ids []uuid.UUID) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.RoomID != roomID || m.SenderID != senderID {
			continue
		}
		delete(s.messages, id)
		delete(s.seq, id)
		n++
	}
	s.mutations += n
	return n, nil
}

type callRepo struct{ s *Store }

func (r callRepo) Create(_ context.Context, c call.Signal) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; ok {
		return marketchat_errors.ErrAlreadyExists
	}
	s.calls[c.ID] = c
	s.mutations++
	return nil
}

func (r callRepo) GetByID(_ context.Context, id uuid.UUID) (call.Signal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return call.Signal{}, marketchat_errors.ErrNotFound
	}
	return c, nil
}

func (r callRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to call.Status, reason string, at time.Time) (call.Signal, error) {
	if !call.CanTransition(from, to) {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return call.Signal{}, marketchat_errors.ErrNotFound
	}
	if c.Status != from {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	t := at
	c.Status = to
	c.UpdatedAt = at
	switch to {
	case call.StatusConnected:
		c.ConnectedAt = &t
	case call.StatusEnded:
		c.EndedAt = &t
		if reason != "" {
			c.EndReason = reason
		}
	}
	s.calls[id] = c
	s.mutations++
	return c, nil
}

func (r callRepo) ActiveForRoom(_ context.Context, roomID uuid.UUID) (call.Signal, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var found call.Signal
	ok := false
	for _, c := range s.calls {
		if c.RoomID == roomID && c.Active() && (!ok || c.CreatedAt.After(found.CreatedAt)) {
			found, ok = c, true
		}
	}
	if !ok {
		return call.Signal{}, marketchat_errors.ErrNotFound
	}
	return found, nil
}
