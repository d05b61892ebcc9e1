package room

import (
	"sort"
	"strings"
	"time"

	"marketchat/internal/domain/persona"
	marketchat_errors "marketchat/pkg/errors"

	"github.com/google/uuid"
)

type ChatType string

const (
	ChatTypeUserUser     ChatType = "user_user"
	ChatTypeUserVendor   ChatType = "user_vendor"
	ChatTypeVendorVendor ChatType = "vendor_vendor"
)

// DeriveChatType classifies a pair of persona kinds, order-insensitive.
func DeriveChatType(a, b persona.Kind) ChatType {
	shops := 0
	for _, k := range []persona.Kind{a, b} {
		if k == persona.KindShop {
			shops++
		}
	}
	switch shops {
	case 0:
		return ChatTypeUserUser
	case 1:
		return ChatTypeUserVendor
	default:
		return ChatTypeVendorVendor
	}
}

type ParticipantType string

const (
	ParticipantUser   ParticipantType = "user"
	ParticipantVendor ParticipantType = "vendor"
)

func ParticipantTypeOf(k persona.Kind) ParticipantType {
	if k == persona.KindShop {
		return ParticipantVendor
	}
	return ParticipantUser
}

// Room represents the chat_rooms table
type Room struct {
	ID            uuid.UUID
	ParticipantA  uuid.UUID
	ParticipantB  uuid.UUID
	NameA         string
	AvatarA       string
	NameB         string
	AvatarB       string
	ChatType      ChatType
	LastMessage   string
	LastMessageAt *time.Time
	LastSenderID  uuid.NullUUID
	UnreadCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r Room) Validate() error {
	if r.ID == uuid.Nil || r.ParticipantA == uuid.Nil || r.ParticipantB == uuid.Nil {
		return marketchat_errors.ErrInvalidRow
	}
	if r.ParticipantA == r.ParticipantB {
		return marketchat_errors.ErrInvalidRow
	}
	switch r.ChatType {
	case ChatTypeUserUser, ChatTypeUserVendor, ChatTypeVendorVendor:
	default:
		return marketchat_errors.ErrInvalidRow
	}
	if r.UnreadCount < 0 {
		return marketchat_errors.ErrInvalidRow
	}
	return nil
}

func (r Room) HasParticipant(id uuid.UUID) bool {
	return r.ParticipantA == id || r.ParticipantB == id
}

// Counterpart returns the participant that is not self, or false when self
// is not in the room.
func (r Room) Counterpart(self uuid.UUID) (uuid.UUID, bool) {
	switch self {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	}
	return uuid.Nil, false
}

func (r Room) snapshotOf(id uuid.UUID) (string, string) {
	if id == r.ParticipantA {
		return r.NameA, r.AvatarA
	}
	return r.NameB, r.AvatarB
}

// UnreadFor is the unread count as seen by viewer. The counter belongs to
// whoever did not send the latest message.
func (r Room) UnreadFor(viewer uuid.UUID) int {
	if r.LastSenderID.Valid && r.LastSenderID.UUID == viewer {
		return 0
	}
	return r.UnreadCount
}

type SortBy string

const (
	SortRecent SortBy = "recent"
	SortUnread SortBy = "unread"
)

func ParseSortBy(s string) SortBy {
	if SortBy(s) == SortUnread {
		return SortUnread
	}
	return SortRecent
}

// Summary is a room as seen from one persona.
type Summary struct {
	RoomID               uuid.UUID       `json:"room_id"`
	OtherParticipantID   uuid.UUID       `json:"other_participant_id"`
	OtherParticipantType ParticipantType `json:"other_participant_type"`
	OtherName            string          `json:"other_name"`
	OtherAvatar          string          `json:"other_avatar,omitempty"`
	ChatType             ChatType        `json:"chat_type"`
	LastMessage          string          `json:"last_message"`
	LastMessageAt        *time.Time      `json:"last_message_at,omitempty"`
	UnreadCount          int             `json:"unread_count"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Summarize builds the viewer's summary of r. ok is false when the viewer is
// not a participant.
func Summarize(r Room, viewer uuid.UUID, counterpartKind persona.Kind) (Summary, bool) {
	other, ok := r.Counterpart(viewer)
	if !ok {
		return Summary{}, false
	}
	name, avatar := r.snapshotOf(other)
	return Summary{
		RoomID:               r.ID,
		OtherParticipantID:   other,
		OtherParticipantType: ParticipantTypeOf(counterpartKind),
		OtherName:            name,
		OtherAvatar:          avatar,
		ChatType:             r.ChatType,
		LastMessage:          r.LastMessage,
		LastMessageAt:        r.LastMessageAt,
		UnreadCount:          r.UnreadFor(viewer),
		UpdatedAt:            r.UpdatedAt,
	}, true
}

// SortSummaries orders list in place. Both orders are stable.
func SortSummaries(list []Summary, by SortBy) {
	switch by {
	case SortUnread:
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].UnreadCount != list[j].UnreadCount {
				return list[i].UnreadCount > list[j].UnreadCount
			}
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		})
	default:
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		})
	}
}

// Filter keeps summaries whose counterpart name or last message contains
// query, case-insensitively. An empty query keeps everything.
func Filter(list []Summary, query string) []Summary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		if strings.Contains(strings.ToLower(s.OtherName), q) || strings.Contains(strings.ToLower(s.LastMessage), q) {
			out = append(out, s)
		}
	}
	return out
}
