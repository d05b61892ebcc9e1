// Package session holds the per-identity client state: the resolved
// personas, the active persona's room list and the open room. Every
// asynchronous completion is checked against the token captured when it was
// dispatched, so a slow result for a persona or room the user already left
// is dropped instead of overwriting newer state.
package session

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/domain/persona"
	"marketchat/internal/domain/room"
	"marketchat/internal/identity"
	"marketchat/internal/services"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

type PersonaResolver interface {
	Resolve(ctx context.Context, id identity.Identity) (persona.Set, error)
}

type RoomLister interface {
	ListRooms(ctx context.Context, p persona.Persona, sortBy room.SortBy) ([]room.Summary, error)
}

type MessageChannel interface {
	LoadHistory(ctx context.Context, roomID, viewerID uuid.UUID) ([]message.Message, error)
	Subscribe(ctx context.Context, roomID uuid.UUID) (*services.MessageStream, error)
	Send(ctx context.Context, roomID, senderID uuid.UUID, content message.Content) (message.Message, error)
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID) (int, error)
	DeleteOwn(ctx context.Context, roomID, actorID uuid.UUID, ids []uuid.UUID) (message.DeleteResult, error)
}

type CallSignaling interface {
	Start(ctx context.Context, roomID, callerID uuid.UUID, callType call.Type) (call.Signal, error)
	Answer(ctx context.Context, callID, receiverID uuid.UUID) (call.Signal, error)
	End(ctx context.Context, callID, actorID uuid.UUID, reason string) (call.Signal, error)
	SubscribeCalls(ctx context.Context, roomID uuid.UUID) (*services.CallStream, error)
}

type Deps struct {
	Personas PersonaResolver
	Rooms    RoomLister
	Messages MessageChannel
	// Calls may be nil; rooms then open without call signaling.
	Calls       CallSignaling
	Logger      *logger.Logger
	RingTimeout time.Duration
}

type Session struct {
	mu   sync.Mutex
	deps Deps
	log  *logger.Logger

	identity identity.Identity
	set      persona.Set
	active   persona.Persona

	token         uint64
	inflight      int
	rooms         []room.Summary
	sortBy        room.SortBy
	query         string
	err           error
	initialLoaded bool

	roomToken uint64
	view      *RoomView
}

func New(id identity.Identity, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logger.GetGlobalLogger()
	}
	if deps.RingTimeout <= 0 {
		deps.RingTimeout = call.RingTimeout
	}
	return &Session{deps: deps, log: deps.Logger, identity: id, sortBy: room.SortRecent}
}

// Start resolves the identity's personas and loads the default persona's
// rooms.
func (s *Session) Start(ctx context.Context) error {
	set, err := s.deps.Personas.Resolve(ctx, s.identity)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.set = set
	s.active = set.Active
	s.mu.Unlock()
	return s.Reload(ctx)
}

// SetActivePersona switches persona, closes any open room and reloads.
func (s *Session) SetActivePersona(ctx context.Context, personaID uuid.UUID) error {
	s.mu.Lock()
	p, ok := s.set.Find(personaID)
	if !ok {
		s.mu.Unlock()
		return marketchat_errors.ErrForbidden
	}
	s.active = p
	s.rooms = nil
	view := s.detachViewLocked()
	s.mu.Unlock()

	if view != nil {
		view.Close()
	}
	return s.Reload(ctx)
}

// Reload fetches the active persona's rooms. A result that arrives after a
// newer reload or persona switch is discarded.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.token++
	token := s.token
	p := s.active
	sortBy := s.sortBy
	s.inflight++
	s.mu.Unlock()

	list, err := s.deps.Rooms.ListRooms(ctx, p, sortBy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if token != s.token {
		s.log.Debugf("discarding room list for persona %s: %v", p.ID, marketchat_errors.ErrStaleResult)
		return nil
	}
	if err != nil {
		s.err = err
		return err
	}
	s.rooms = list
	s.err = nil
	s.initialLoaded = true
	return nil
}

// SetSortBy reloads once, and only after the first load has completed.
func (s *Session) SetSortBy(ctx context.Context, by room.SortBy) error {
	s.mu.Lock()
	if by == s.sortBy {
		s.mu.Unlock()
		return nil
	}
	s.sortBy = by
	loaded := s.initialLoaded
	s.mu.Unlock()
	if !loaded {
		return nil
	}
	return s.Reload(ctx)
}

func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = q
}

// Rooms is the committed room list with the query filter applied.
func (s *Session) Rooms() []room.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]room.Summary(nil), room.Filter(s.rooms, s.query)...)
}

func (s *Session) Active() persona.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Personas() persona.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) SortBy() room.SortBy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortBy
}

// Close tears down the open room, if any.
func (s *Session) Close() {
	s.mu.Lock()
	view := s.detachViewLocked()
	s.mu.Unlock()
	if view != nil {
		view.Close()
	}
}

func (s *Session) detachViewLocked() *RoomView {
	s.roomToken++
	view := s.view
	s.view = nil
	return view
}

func (s *Session) roomCurrent(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomToken == token
}
