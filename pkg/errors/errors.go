package marketchat_errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTooLarge           = errors.New("file too large")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidRow         = errors.New("invalid row")
	ErrStaleResult        = errors.New("stale result")
	ErrPartialLink        = errors.New("room not linked to every participant")
	ErrTransientStore     = errors.New("transient store error")
)

// PartialLinkError is returned when a room exists but could not be added to
// one or both participants' membership index after all retries.
type PartialLinkError struct {
	RoomID   uuid.UUID
	Unlinked []uuid.UUID
	Err      error
}

func (e *PartialLinkError) Error() string {
	ids := make([]string, 0, len(e.Unlinked))
	for _, id := range e.Unlinked {
		ids = append(ids, id.String())
	}
	msg := fmt.Sprintf("room %s not linked for [%s]", e.RoomID, strings.Join(ids, ","))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialLinkError) Is(target error) bool {
	return target == ErrPartialLink
}

func (e *PartialLinkError) Unwrap() error {
	return e.Err
}

// TransientError wraps a store failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransientStore
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
