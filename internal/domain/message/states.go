package message

type Status string

const (
	StatusCreated   Status = "created"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusCreated:   0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func (m Message) Status() Status {
	switch {
	case m.IsRead:
		return StatusRead
	case m.Delivered:
		return StatusDelivered
	default:
		return StatusCreated
	}
}

// CanAdvance reports whether a message may move from one status to another.
// Status never moves backward; staying put is allowed.
func CanAdvance(from, to Status) bool {
	f, ok := statusRank[from]
	if !ok {
		return false
	}
	t, ok := statusRank[to]
	if !ok {
		return false
	}
	return t >= f
}
