package events

import (
	"fmt"

	"github.com/google/uuid"
)

// RoomMessagesChannel carries inserts, reads and deletes for one room.
func RoomMessagesChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("%s%s:messages", ChannelPrefixRoom, roomID)
}

// RoomCallsChannel carries call signal changes for one room.
func RoomCallsChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("%s%s:calls", ChannelPrefixRoom, roomID)
}

// PersonaChannel carries room-list changes for one persona.
func PersonaChannel(personaID uuid.UUID) string {
	return ChannelPrefixPersona + personaID.String()
}
