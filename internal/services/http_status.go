package services

import (
	"errors"

	marketchat_errors "marketchat/pkg/errors"
)

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, marketchat_errors.ErrInvalidInput):
		return 400
	case errors.Is(err, marketchat_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, marketchat_errors.ErrForbidden):
		return 403
	case errors.Is(err, marketchat_errors.ErrNotFound):
		return 404
	case errors.Is(err, marketchat_errors.ErrAlreadyExists),
		errors.Is(err, marketchat_errors.ErrConflict),
		errors.Is(err, marketchat_errors.ErrInvalidTransition),
		errors.Is(err, marketchat_errors.ErrPartialLink):
		return 409
	case errors.Is(err, marketchat_errors.ErrTooLarge):
		return 413
	case errors.Is(err, marketchat_errors.ErrRateLimited):
		return 429
	case errors.Is(err, marketchat_errors.ErrServiceUnavailable), errors.Is(err, marketchat_errors.ErrTransientStore):
		return 503
	default:
		return 500
	}
}

// ErrorCode is the machine readable code sent alongside HTTPStatus.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, marketchat_errors.ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, marketchat_errors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, marketchat_errors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, marketchat_errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, marketchat_errors.ErrPartialLink):
		return "ROOM_NOT_LINKED"
	case errors.Is(err, marketchat_errors.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, marketchat_errors.ErrAlreadyExists), errors.Is(err, marketchat_errors.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, marketchat_errors.ErrTooLarge):
		return "TOO_LARGE"
	case errors.Is(err, marketchat_errors.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, marketchat_errors.ErrServiceUnavailable), errors.Is(err, marketchat_errors.ErrTransientStore):
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
