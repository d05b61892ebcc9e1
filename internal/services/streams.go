package services

import (
	"time"

	"marketchat/internal/domain/call"
	"marketchat/internal/domain/message"
	"marketchat/internal/events"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

type receiptPayload struct {
	ReaderID uuid.UUID `json:"reader_id"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}

type deletedPayload struct {
	IDs      []uuid.UUID `json:"ids"`
	SenderID uuid.UUID   `json:"sender_id"`
}

type ChangeKind string

const (
	ChangeInserted  ChangeKind = "inserted"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeRead      ChangeKind = "read"
	ChangeDelivered ChangeKind = "delivered"
)

// MessageChange is one decoded event from a room's message channel.
type MessageChange struct {
	Kind     ChangeKind
	Message  message.Message
	IDs      []uuid.UUID
	ReaderID uuid.UUID
	At       time.Time
}

type MessageStream struct {
	RoomID  uuid.UUID
	sub     *events.Subscription
	changes chan MessageChange
}

func newMessageStream(roomID uuid.UUID, sub *events.Subscription, l *logger.Logger) *MessageStream {
	st := &MessageStream{RoomID: roomID, sub: sub, changes: make(chan MessageChange, 16)}
	go func() {
		defer close(st.changes)
		for env := range sub.Events() {
			ch, ok := decodeMessageChange(env)
			if !ok {
				l.Warnf("dropping malformed %s event for room %s", env.EventType, roomID)
				continue
			}
			if ch.Kind == ChangeInserted && ch.Message.RoomID != roomID {
				continue
			}
			st.changes <- ch
		}
	}()
	return st
}

// Changes is closed when the stream ends.
func (s *MessageStream) Changes() <-chan MessageChange {
	return s.changes
}

func (s *MessageStream) Close() {
	s.sub.Close()
	// Drain so the decoder goroutine can exit.
	go func() {
		for range s.changes {
		}
	}()
}

func decodeMessageChange(env events.Envelope) (MessageChange, bool) {
	switch env.EventType {
	case events.EventTypeMessageCreated:
		var m message.Message
		if err := env.Decode(&m); err != nil || m.Validate() != nil {
			return MessageChange{}, false
		}
		return MessageChange{Kind: ChangeInserted, Message: m, At: m.CreatedAt}, true
	case events.EventTypeMessageDeleted:
		var p deletedPayload
		if err := env.Decode(&p); err != nil {
			return MessageChange{}, false
		}
		return MessageChange{Kind: ChangeDeleted, IDs: p.IDs, ReaderID: p.SenderID, At: env.OccurredAt}, true
	case events.EventTypeMessageRead, events.EventTypeMessageDelivered:
		var p receiptPayload
		if err := env.Decode(&p); err != nil || p.ReaderID == uuid.Nil {
			return MessageChange{}, false
		}
		kind := ChangeRead
		if env.EventType == events.EventTypeMessageDelivered {
			kind = ChangeDelivered
		}
		return MessageChange{Kind: kind, ReaderID: p.ReaderID, At: p.At}, true
	}
	return MessageChange{}, false
}

type CallStream struct {
	RoomID  uuid.UUID
	sub     *events.Subscription
	signals chan call.Signal
}

func newCallStream(roomID uuid.UUID, sub *events.Subscription, l *logger.Logger) *CallStream {
	st := &CallStream{RoomID: roomID, sub: sub, signals: make(chan call.Signal, 8)}
	go func() {
		defer close(st.signals)
		for env := range sub.Events() {
			var sig call.Signal
			if err := env.Decode(&sig); err != nil || sig.ID == uuid.Nil || sig.RoomID != roomID {
				l.Warnf("dropping malformed %s event for room %s", env.EventType, roomID)
				continue
			}
			st.signals <- sig
		}
	}()
	return st
}

// Signals is closed when the stream ends.
func (s *CallStream) Signals() <-chan call.Signal {
	return s.signals
}

func (s *CallStream) Close() {
	s.sub.Close()
	go func() {
		for range s.signals {
		}
	}()
}
