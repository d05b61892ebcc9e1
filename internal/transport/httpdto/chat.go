package httpdto

import (
	"marketchat/internal/domain/message"

	"github.com/google/uuid"
)

type EnsureRoomRequest struct {
	PersonaID     string `json:"persona_id" binding:"required"`
	CounterpartID string `json:"counterpart_id" binding:"required"`
}

type EnsureRoomResponse struct {
	RoomID   uuid.UUID   `json:"room_id"`
	Unlinked []uuid.UUID `json:"unlinked,omitempty"`
}

type SendMessageRequest struct {
	PersonaID string                `json:"persona_id"`
	Type      message.Type          `json:"type"`
	Text      string                `json:"text"`
	MediaURL  string                `json:"media_url"`
	MediaType string                `json:"media_type"`
	FileName  string                `json:"file_name"`
	FileSize  int64                 `json:"file_size"`
	ReplyTo   string                `json:"reply_to"`
	Offer     *message.OfferDetails `json:"offer"`
}

// PersonaRequest is the body of endpoints that only need the acting persona.
type PersonaRequest struct {
	PersonaID string `json:"persona_id"`
}

type DeleteMessagesRequest struct {
	PersonaID  string   `json:"persona_id"`
	MessageIDs []string `json:"message_ids" binding:"required"`
}

type CountResponse struct {
	Updated int `json:"updated"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type StartCallRequest struct {
	PersonaID string `json:"persona_id"`
	CallType  string `json:"call_type"`
}

type EndCallRequest struct {
	PersonaID string `json:"persona_id"`
	Reason    string `json:"reason"`
}
