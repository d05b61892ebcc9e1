package services

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/domain/message"
	"marketchat/internal/domain/room"
	"marketchat/internal/events"
	"marketchat/internal/redis"
	"marketchat/internal/repository"
	"marketchat/internal/storage"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	AllowMessage(ctx context.Context, personaID string) (*redis.RateLimitResult, error)
	AllowCall(ctx context.Context, personaID string) (*redis.RateLimitResult, error)
}

// MediaStore is satisfied by storage.Client.
type MediaStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

const DefaultMaxUploadBytes = 10 << 20

type MessageService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	publisher *EventPublisher
	bus       events.Bus
	limiter   RateLimiter
	media     MediaStore
	log       *logger.Logger
	now       func() time.Time
	maxUpload int64
}

type MessageServiceOption func(*MessageService)

func WithRateLimiter(l RateLimiter) MessageServiceOption {
	return func(s *MessageService) { s.limiter = l }
}

func WithMediaStore(m MediaStore) MessageServiceOption {
	return func(s *MessageService) { s.media = m }
}

func WithMaxUpload(n int64) MessageServiceOption {
	return func(s *MessageService) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func NewMessageService(rooms repository.RoomRepository, messages repository.MessageRepository, bus events.Bus, l *logger.Logger, opts ...MessageServiceOption) *MessageService {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	s := &MessageService{
		rooms:     rooms,
		messages:  messages,
		publisher: NewEventPublisher(bus, l),
		bus:       bus,
		log:       l,
		now:       time.Now,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadHistory returns the room's messages oldest first.
func (s *MessageService) LoadHistory(ctx context.Context, roomID, viewerID uuid.UUID) ([]message.Message, error) {
	if _, err := participantRoom(ctx, s.rooms, roomID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

// Send stores a message and updates the room summary. The summary write is
// secondary: if it fails the message is kept and the error is only logged.
func (s *MessageService) Send(ctx context.Context, roomID, senderID uuid.UUID, content message.Content) (message.Message, error) {
	content = content.Normalize()
	if err := content.Validate(); err != nil {
		return message.Message{}, err
	}
	rm, err := participantRoom(ctx, s.rooms, roomID, senderID)
	if err != nil {
		return message.Message{}, err
	}
	if s.limiter != nil {
		if err := checkRate(ctx, s.log, senderID, s.limiter.AllowMessage); err != nil {
			return message.Message{}, err
		}
	}

	m := message.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      content.Type,
		Text:      content.Text,
		MediaURL:  content.MediaURL,
		MediaType: content.MediaType,
		FileName:  content.FileName,
		FileSize:  content.FileSize,
		CreatedAt: s.now().UTC(),
	}
	if content.ReplyTo != nil {
		quoted, err := s.messages.GetByID(ctx, *content.ReplyTo)
		if err != nil {
			if errors.Is(err, marketchat_errors.ErrNotFound) {
				return message.Message{}, marketchat_errors.ErrInvalidInput
			}
			return message.Message{}, err
		}
		if quoted.RoomID != roomID {
			return message.Message{}, marketchat_errors.ErrInvalidInput
		}
		m.Metadata.ReplyTo = &message.ReplyRef{MessageID: quoted.ID, Text: quoted.Preview(), SenderID: quoted.SenderID}
	}
	if content.Type == message.TypeOffer {
		m.Metadata.Offer = content.Offer
	}

	if err := s.messages.Create(ctx, m); err != nil {
		return message.Message{}, err
	}
	if err := s.rooms.RecordMessage(ctx, roomID, senderID, m.Preview(), m.CreatedAt); err != nil {
		s.log.Ctx(ctx).Sugar().Errorf("message %s stored but room %s summary not updated: %v", m.ID, roomID, err)
	}

	s.publisher.publish(ctx, events.RoomMessagesChannel(roomID), events.EventTypeMessageCreated, events.AggregateTypeMessage, m.ID, m)
	s.publishRoomUpdated(ctx, rm)
	return m, nil
}

func (s *MessageService) publishRoomUpdated(ctx context.Context, rm room.Room) {
	for _, id := range []uuid.UUID{rm.ParticipantA, rm.ParticipantB} {
		s.publisher.publish(ctx, events.PersonaChannel(id), events.EventTypeRoomUpdated, events.AggregateTypeRoom, rm.ID, roomEventPayload{RoomID: rm.ID})
	}
}

// MarkRead flags every unread inbound message as read and clears the room's
// unread counter. Calling it again with nothing new writes nothing.
func (s *MessageService) MarkRead(ctx context.Context, roomID, readerID uuid.UUID) (int, error) {
	rm, err := participantRoom(ctx, s.rooms, roomID, readerID)
	if err != nil {
		return 0, err
	}
	at := s.now().UTC()
	n, err := s.messages.MarkRead(ctx, roomID, readerID, at)
	if err != nil {
		return 0, err
	}
	reset, err := s.rooms.ResetUnread(ctx, roomID, readerID)
	if err != nil {
		s.log.Ctx(ctx).Sugar().Warnf("reset unread for room %s: %v", roomID, err)
	}
	if n > 0 {
		s.publisher.publish(ctx, events.RoomMessagesChannel(roomID), events.EventTypeMessageRead, events.AggregateTypeRoom, roomID,
			receiptPayload{ReaderID: readerID, Count: n, At: at})
	}
	if reset {
		s.publishRoomUpdated(ctx, rm)
	}
	return n, nil
}

// MarkDelivered flags inbound messages the reader's client has received.
func (s *MessageService) MarkDelivered(ctx context.Context, roomID, readerID uuid.UUID) (int, error) {
	if _, err := participantRoom(ctx, s.rooms, roomID, readerID); err != nil {
		return 0, err
	}
	at := s.now().UTC()
	n, err := s.messages.MarkDelivered(ctx, roomID, readerID, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publisher.publish(ctx, events.RoomMessagesChannel(roomID), events.EventTypeMessageDelivered, events.AggregateTypeRoom, roomID,
			receiptPayload{ReaderID: readerID, Count: n, At: at})
	}
	return n, nil
}

// DeleteOwn hard-deletes the subset of ids the actor sent in this room.
func (s *MessageService) DeleteOwn(ctx context.Context, roomID, actorID uuid.UUID, ids []uuid.UUID) (message.DeleteResult, error) {
	if _, err := participantRoom(ctx, s.rooms, roomID, actorID); err != nil {
		return message.DeleteResult{}, err
	}
	ids = uniqueIDs(ids)
	result := message.DeleteResult{Requested: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}
	owned, err := s.messages.OwnedBy(ctx, roomID, actorID, ids)
	if err != nil {
		return result, err
	}
	result.Eligible = len(owned)
	if len(owned) == 0 {
		return result, nil
	}
	n, err := s.messages.DeleteOwned(ctx, roomID, actorID, owned)
	if err != nil {
		return result, err
	}
	result.Deleted = n
	s.publisher.publish(ctx, events.RoomMessagesChannel(roomID), events.EventTypeMessageDeleted, events.AggregateTypeRoom, roomID,
		deletedPayload{IDs: owned, SenderID: actorID})
	return result, nil
}

// UploadMedia stores an attachment and returns its public URL for use in a
// following Send.
func (s *MessageService) UploadMedia(ctx context.Context, roomID, senderID uuid.UUID, fileName, contentType string, body []byte) (string, error) {
	if s.media == nil {
		return "", marketchat_errors.ErrServiceUnavailable
	}
	if _, err := participantRoom(ctx, s.rooms, roomID, senderID); err != nil {
		return "", err
	}
	if len(body) == 0 || storage.ValidateContentType(contentType) != nil {
		return "", marketchat_errors.ErrInvalidInput
	}
	if int64(len(body)) > s.maxUpload {
		return "", marketchat_errors.ErrTooLarge
	}
	url, err := s.media.Upload(ctx, storage.MediaKey(roomID, fileName), contentType, body)
	if err != nil {
		s.log.Ctx(ctx).Sugar().Errorf("media upload for room %s failed: %v", roomID, err)
		return "", marketchat_errors.ErrServiceUnavailable
	}
	return url, nil
}

// checkRate fails open when the limiter itself is unavailable.
func checkRate(ctx context.Context, l *logger.Logger, personaID uuid.UUID, check func(context.Context, string) (*redis.RateLimitResult, error)) error {
	res, err := check(ctx, personaID.String())
	if err != nil {
		l.Ctx(ctx).Sugar().Warnf("rate limit check for %s failed, allowing: %v", personaID, err)
		return nil
	}
	if !res.Allowed {
		return marketchat_errors.ErrRateLimited
	}
	return nil
}

// Subscribe streams the room's message changes until ctx is cancelled or the
// stream is closed.
func (s *MessageService) Subscribe(ctx context.Context, roomID uuid.UUID) (*MessageStream, error) {
	if s.bus == nil {
		return nil, marketchat_errors.ErrServiceUnavailable
	}
	sub, err := s.bus.Subscribe(ctx, events.RoomMessagesChannel(roomID))
	if err != nil {
		return nil, err
	}
	return newMessageStream(roomID, sub, s.log), nil
}
