package call

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeVoice Type = "voice"
	TypeVideo Type = "video"
)

func (t Type) Valid() bool {
	return t == TypeVoice || t == TypeVideo
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

const (
	EndReasonCompleted = "completed"
	EndReasonDeclined  = "declined"
	EndReasonMissed    = "missed"
	EndReasonCancelled = "cancelled"
)

// RingTimeout is how long an outgoing call rings before the caller ends it.
const RingTimeout = 30 * time.Second

// Signal represents the call_signals table
type Signal struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	CallerID    uuid.UUID  `json:"caller_id"`
	ReceiverID  uuid.UUID  `json:"receiver_id"`
	CallType    Type       `json:"call_type"`
	Status      Status     `json:"status"`
	EndReason   string     `json:"end_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func (s Signal) Active() bool {
	return s.Status == StatusRinging || s.Status == StatusConnected
}

func (s Signal) HasParticipant(id uuid.UUID) bool {
	return s.CallerID == id || s.ReceiverID == id
}

// CanTransition reports whether a call may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusRinging:
		return to == StatusConnected || to == StatusEnded
	case StatusConnected:
		return to == StatusEnded
	}
	return false
}
