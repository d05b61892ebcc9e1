package services

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/events"
	"marketchat/internal/redis"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

// CallSlots is satisfied by redis.CallSlotStore.
type CallSlots interface {
	Claim(ctx context.Context, roomID, callID uuid.UUID, ttl time.Duration) error
	Extend(ctx context.Context, roomID, callID uuid.UUID, ttl time.Duration) error
	Release(ctx context.Context, roomID, callID uuid.UUID) error
}

const (
	// callSlotGrace keeps the slot a little longer than the ring so the
	// caller's own timeout always fires first.
	callSlotGrace    = 10 * time.Second
	connectedSlotTTL = 4 * time.Hour
)

type CallService struct {
	rooms       repository.RoomRepository
	calls       repository.CallRepository
	slots       CallSlots
	limiter     RateLimiter
	publisher   *EventPublisher
	bus         events.Bus
	log         *logger.Logger
	now         func() time.Time
	ringTimeout time.Duration
}

func NewCallService(rooms repository.RoomRepository, calls repository.CallRepository, slots CallSlots, limiter RateLimiter, bus events.Bus, ringTimeout time.Duration, l *logger.Logger) *CallService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	if ringTimeout <= 0 {
		ringTimeout = call.RingTimeout
	}
	return &CallService{
		rooms:       rooms,
		calls:       calls,
		slots:       slots,
		limiter:     limiter,
		publisher:   NewEventPublisher(bus, l),
		bus:         bus,
		log:         l,
		now:         time.Now,
		ringTimeout: ringTimeout,
	}
}

func (s *CallService) RingTimeout() time.Duration {
	return s.ringTimeout
}

// Start rings the other participant. A room has at most one active call.
func (s *CallService) Start(ctx context.Context, roomID, callerID uuid.UUID, callType call.Type) (call.Signal, error) {
	if callType == "" {
		callType = call.TypeVoice
	}
	if !callType.Valid() {
		return call.Signal{}, marketchat_errors.ErrInvalidInput
	}
	rm, err := participantRoom(ctx, s.rooms, roomID, callerID)
	if err != nil {
		return call.Signal{}, err
	}
	receiverID, _ := rm.Counterpart(callerID)
	if s.limiter != nil {
		if err := checkRate(ctx, s.log, callerID, s.limiter.AllowCall); err != nil {
			return call.Signal{}, err
		}
	}

	active, err := s.calls.ActiveForRoom(ctx, roomID)
	switch {
	case err == nil:
		if !s.stale(active) {
			return call.Signal{}, marketchat_errors.ErrConflict
		}
		if _, err := s.end(ctx, active, call.EndReasonMissed); err != nil && !errors.Is(err, marketchat_errors.ErrInvalidTransition) {
			return call.Signal{}, err
		}
	case !errors.Is(err, marketchat_errors.ErrNotFound):
		return call.Signal{}, err
	}

	now := s.now().UTC()
	sig := call.Signal{
		ID:         uuid.New(),
		RoomID:     roomID,
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		Status:     call.StatusRinging,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.slots != nil {
		err := s.slots.Claim(ctx, roomID, sig.ID, s.ringTimeout+callSlotGrace)
		if errors.Is(err, redis.ErrSlotTaken) {
			return call.Signal{}, marketchat_errors.ErrConflict
		}
		if err != nil {
			s.log.Ctx(ctx).Sugar().Warnf("call slot claim for room %s failed, relying on store check: %v", roomID, err)
		}
	}
	if err := s.calls.Create(ctx, sig); err != nil {
		s.release(ctx, sig)
		return call.Signal{}, err
	}

	s.publisher.publish(ctx, events.RoomCallsChannel(roomID), events.EventTypeCallRinging, events.AggregateTypeCall, sig.ID, sig)
	s.publisher.publish(ctx, events.PersonaChannel(receiverID), events.EventTypeCallRinging, events.AggregateTypeCall, sig.ID, sig)
	return sig, nil
}

// Answer connects a ringing call. Only the receiver may answer.
func (s *CallService) Answer(ctx context.Context, callID, receiverID uuid.UUID) (call.Signal, error) {
	sig, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return call.Signal{}, err
	}
	if sig.ReceiverID != receiverID {
		return call.Signal{}, marketchat_errors.ErrForbidden
	}
	updated, err := s.calls.UpdateStatus(ctx, callID, call.StatusRinging, call.StatusConnected, "", s.now().UTC())
	if err != nil {
		return call.Signal{}, err
	}
	if s.slots != nil {
		if err := s.slots.Extend(ctx, updated.RoomID, updated.ID, connectedSlotTTL); err != nil {
			s.log.Ctx(ctx).Sugar().Warnf("extend call slot %s: %v", updated.ID, err)
		}
	}
	s.publisher.publish(ctx, events.RoomCallsChannel(updated.RoomID), events.EventTypeCallConnected, events.AggregateTypeCall, updated.ID, updated)
	return updated, nil
}

// End hangs up. An empty reason is derived from who ends the call and its
// current status.
func (s *CallService) End(ctx context.Context, callID, actorID uuid.UUID, reason string) (call.Signal, error) {
	sig, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return call.Signal{}, err
	}
	if !sig.HasParticipant(actorID) {
		return call.Signal{}, marketchat_errors.ErrForbidden
	}
	if !sig.Active() {
		return call.Signal{}, marketchat_errors.ErrInvalidTransition
	}
	if reason == "" {
		reason = defaultEndReason(sig, actorID)
	}
	if !validEndReason(reason) {
		return call.Signal{}, marketchat_errors.ErrInvalidInput
	}
	return s.end(ctx, sig, reason)
}

func (s *CallService) end(ctx context.Context, sig call.Signal, reason string) (call.Signal, error) {
	updated, err := s.calls.UpdateStatus(ctx, sig.ID, sig.Status, call.StatusEnded, reason, s.now().UTC())
	if err != nil {
		return call.Signal{}, err
	}
	s.release(ctx, updated)
	s.publisher.publish(ctx, events.RoomCallsChannel(updated.RoomID), events.EventTypeCallEnded, events.AggregateTypeCall, updated.ID, updated)
	return updated, nil
}

func (s *CallService) release(ctx context.Context, sig call.Signal) {
	if s.slots == nil {
		return
	}
	if err := s.slots.Release(ctx, sig.RoomID, sig.ID); err != nil {
		s.log.Ctx(ctx).Sugar().Warnf("release call slot %s: %v", sig.ID, err)
	}
}

// stale reports a ringing call nobody ended after its caller went away.
func (s *CallService) stale(sig call.Signal) bool {
	return sig.Status == call.StatusRinging && s.now().Sub(sig.CreatedAt) > s.ringTimeout+callSlotGrace
}

func defaultEndReason(sig call.Signal, actorID uuid.UUID) string {
	if sig.Status == call.StatusConnected {
		return call.EndReasonCompleted
	}
	if actorID == sig.ReceiverID {
		return call.EndReasonDeclined
	}
	return call.EndReasonCancelled
}

func validEndReason(r string) bool {
	switch r {
	case call.EndReasonCompleted, call.EndReasonDeclined, call.EndReasonMissed, call.EndReasonCancelled:
		return true
	}
	return false
}

// SubscribeCalls streams call signal changes for the room.
func (s *CallService) SubscribeCalls(ctx context.Context, roomID uuid.UUID) (*CallStream, error) {
	if s.bus == nil {
		return nil, marketchat_errors.ErrServiceUnavailable
	}
	sub, err := s.bus.Subscribe(ctx, events.RoomCallsChannel(roomID))
	if err != nil {
		return nil, err
	}
	return newCallStream(roomID, sub, s.log), nil
}
