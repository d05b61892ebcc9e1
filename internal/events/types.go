package events

// Message events
const (
	EventTypeMessageCreated   = "message.created"
	EventTypeMessageDeleted   = "message.deleted"
	EventTypeMessageRead      = "message.read"
	EventTypeMessageDelivered = "message.delivered"
)

// Room events
const (
	EventTypeRoomCreated = "room.created"
	EventTypeRoomUpdated = "room.updated"
)

// Call events
const (
	EventTypeCallRinging   = "call.ringing"
	EventTypeCallConnected = "call.connected"
	EventTypeCallEnded     = "call.ended"
)

// Aggregate type constants
const (
	AggregateTypeMessage = "message"
	AggregateTypeRoom    = "room"
	AggregateTypeCall    = "call"
)

// Redis channel prefixes
const (
	ChannelPrefixRoom    = "channel:room:"
	ChannelPrefixPersona = "channel:persona:"
)
