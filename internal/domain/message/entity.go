package message

import (
	"strings"
	"time"

	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type Type string

const (
	TypeText   Type = "text"
	TypeImage  Type = "image"
	TypeVoice  Type = "voice"
	TypeFile   Type = "file"
	TypeOffer  Type = "offer"
	TypeSystem Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVoice, TypeFile, TypeOffer, TypeSystem:
		return true
	}
	return false
}

func (t Type) hasMedia() bool {
	return t == TypeImage || t == TypeVoice || t == TypeFile
}

// ReplyRef is the quoted message carried in metadata.replyTo.
type ReplyRef struct {
	MessageID uuid.UUID `json:"messageId"`
	Text      string    `json:"text"`
	SenderID  uuid.UUID `json:"senderId"`
}

type OfferDetails struct {
	ListingID string  `json:"listingId,omitempty"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency,omitempty"`
}

type Metadata struct {
	ReplyTo *ReplyRef     `json:"replyTo,omitempty"`
	Offer   *OfferDetails `json:"offer,omitempty"`
}

func (m Metadata) Empty() bool {
	return m.ReplyTo == nil && m.Offer == nil
}

// Message represents the messages table
type Message struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	Type        Type       `json:"type"`
	Text        string     `json:"text"`
	MediaURL    string     `json:"media_url,omitempty"`
	MediaType   string     `json:"media_type,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Metadata    Metadata   `json:"metadata"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Content is what a sender supplies. Everything else is filled by the store
// or the send path.
type Content struct {
	Type      Type          `json:"type"`
	Text      string        `json:"text"`
	MediaURL  string        `json:"media_url,omitempty"`
	MediaType string        `json:"media_type,omitempty"`
	FileName  string        `json:"file_name,omitempty"`
	FileSize  int64         `json:"file_size,omitempty"`
	ReplyTo   *uuid.UUID    `json:"reply_to,omitempty"`
	Offer     *OfferDetails `json:"offer,omitempty"`
}

// FallbackText is the text stored for a message of type t when the sender
// supplied none.
func FallbackText(t Type, fileName string) string {
	switch t {
	case TypeImage:
		return "📷 Image"
	case TypeVoice:
		return "🎤 Voice message"
	case TypeFile:
		if name := strings.TrimSpace(fileName); name != "" {
			return "📎 " + name
		}
		return "📎 File"
	case TypeOffer:
		return "💰 Offer"
	}
	return ""
}

// Normalize defaults the type to text and fills fallback text for non-text
// content.
func (c Content) Normalize() Content {
	if c.Type == "" {
		c.Type = TypeText
	}
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" && c.Type != TypeText && c.Type != TypeSystem {
		c.Text = FallbackText(c.Type, c.FileName)
	}
	return c
}

func (c Content) Validate() error {
	if !c.Type.Valid() {
		return marketchat_errors.ErrInvalidInput
	}
	if c.Text == "" {
		return marketchat_errors.ErrInvalidInput
	}
	if c.Type.hasMedia() && strings.TrimSpace(c.MediaURL) == "" {
		return marketchat_errors.ErrInvalidInput
	}
	if c.Type == TypeOffer && c.Offer == nil {
		return marketchat_errors.ErrInvalidInput
	}
	return nil
}

// Validate checks a decoded row or feed payload.
func (m Message) Validate() error {
	if m.ID == uuid.Nil || m.RoomID == uuid.Nil || m.SenderID == uuid.Nil {
		return marketchat_errors.ErrInvalidRow
	}
	if !m.Type.Valid() {
		return marketchat_errors.ErrInvalidRow
	}
	if m.IsRead && m.ReadAt == nil {
		return marketchat_errors.ErrInvalidRow
	}
	return nil
}

// Preview is the room summary text for m.
func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return FallbackText(m.Type, m.FileName)
}

// DeleteResult reports what a bulk delete did.
type DeleteResult struct {
	Requested int `json:"requested"`
	Eligible  int `json:"eligible"`
	Deleted   int `json:"deleted"`
}
