package httpdto

import (
	marketchat_errors "marketchat/pkg/errors"
)

// Response is the envelope every REST endpoint answers with. Success is
// false whenever Error is set, including partial results that still carry Data.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewPartialLinkResponse reports a room that exists but is missing from some
// personas' indexes. The room id is returned so the client can retry linking.
func NewPartialLinkResponse(partial *marketchat_errors.PartialLinkError, msg, code string) Response[EnsureRoomResponse] {
	return Response[EnsureRoomResponse]{
		Success: false,
		Data:    EnsureRoomResponse{RoomID: partial.RoomID, Unlinked: partial.Unlinked},
		Error:   msg,
		Code:    code,
	}
}
