package room

import (
	"testing"
	"time"

	"marketchat/internal/domain/persona"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChatType(t *testing.T) {
	assert.Equal(t, ChatTypeUserUser, DeriveChatType(persona.KindIndividual, persona.KindIndividual))
	assert.Equal(t, ChatTypeUserVendor, DeriveChatType(persona.KindIndividual, persona.KindShop))
	assert.Equal(t, ChatTypeUserVendor, DeriveChatType(persona.KindShop, persona.KindIndividual))
	assert.Equal(t, ChatTypeVendorVendor, DeriveChatType(persona.KindShop, persona.KindShop))
}

func TestSummarizeUsesCounterpartSnapshot(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	r := Room{
		ID: uuid.New(), ParticipantA: a, ParticipantB: b,
		NameA: "Ada", NameB: "Campus Books", AvatarB: "logo.png",
		ChatType: ChatTypeUserVendor, UnreadCount: 2,
		LastSenderID: uuid.NullUUID{UUID: b, Valid: true},
	}

	s, ok := Summarize(r, a, persona.KindShop)
	require.True(t, ok)
	assert.Equal(t, b, s.OtherParticipantID)
	assert.Equal(t, ParticipantVendor, s.OtherParticipantType)
	assert.Equal(t, "Campus Books", s.OtherName)
	assert.Equal(t, 2, s.UnreadCount)

	s, ok = Summarize(r, b, persona.KindIndividual)
	require.True(t, ok)
	assert.Equal(t, a, s.OtherParticipantID)
	assert.Equal(t, ParticipantUser, s.OtherParticipantType)
	assert.Equal(t, 0, s.UnreadCount, "the last sender has nothing unread")

	_, ok = Summarize(r, uuid.New(), persona.KindIndividual)
	assert.False(t, ok)
}

func TestSortSummaries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := []Summary{
		{OtherName: "old-unread", UnreadCount: 3, UpdatedAt: base},
		{OtherName: "new-read", UnreadCount: 0, UpdatedAt: base.Add(2 * time.Hour)},
		{OtherName: "mid-unread", UnreadCount: 3, UpdatedAt: base.Add(time.Hour)},
		{OtherName: "tie-a", UnreadCount: 0, UpdatedAt: base.Add(-time.Hour)},
		{OtherName: "tie-b", UnreadCount: 0, UpdatedAt: base.Add(-time.Hour)},
	}

	byUnread := append([]Summary(nil), list...)
	SortSummaries(byUnread, SortUnread)
	assert.Equal(t, []string{"mid-unread", "old-unread", "new-read", "tie-a", "tie-b"}, names(byUnread))

	byRecent := append([]Summary(nil), list...)
	SortSummaries(byRecent, SortRecent)
	assert.Equal(t, []string{"new-read", "mid-unread", "old-unread", "tie-a", "tie-b"}, names(byRecent))
}

func TestFilter(t *testing.T) {
	list := []Summary{
		{OtherName: "Campus Books", LastMessage: "see you"},
		{OtherName: "Ada", LastMessage: "is the BOOK still available?"},
		{OtherName: "Grace", LastMessage: "thanks"},
	}
	assert.Len(t, Filter(list, ""), 3)
	assert.Equal(t, []string{"Campus Books", "Ada"}, names(Filter(list, "book")))
	assert.Empty(t, Filter(list, "zzz"))
}

func TestParseSortBy(t *testing.T) {
	assert.Equal(t, SortUnread, ParseSortBy("unread"))
	assert.Equal(t, SortRecent, ParseSortBy("recent"))
	assert.Equal(t, SortRecent, ParseSortBy(""))
}

func names(list []Summary) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.OtherName)
	}
	return out
}
