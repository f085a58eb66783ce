package core

import "errors"

// Error codes for domain errors. They travel on the wire next to the message.
const (
	ErrCodeRoomNotAllowed     = "room_not_allowed"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeRoomNotEntered     = "room_not_entered"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeCannotConnect      = "cannot_connect"
	ErrCodeNotConnected       = "not_connected"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal"
	ErrCodeUnknownEvent       = "unknown_event"
	ErrCodeUnsupportedVersion = "unsupported_version"
)

var (
	// ErrNilDriver is returned by the session factory without a usable driver.
	ErrNilDriver = errors.New("a chat driver is required")
	// ErrInvalidUser is returned by the session factory without a user id.
	ErrInvalidUser = errors.New("a user with a non-empty id is required")
	// ErrInvalidRoom is returned when a room id is empty.
	ErrInvalidRoom = errors.New("room id is required")

	// ErrRoomNotAllowed is returned when the user is not on the room's allow-list.
	ErrRoomNotAllowed = errors.New("room not allowed")
	// ErrNotInRoom is returned by drivers for messages sent to a room the sender is not in.
	ErrNotInRoom = errors.New("not in room")
	// ErrRoomNotEntered is returned by room-scoped operations outside an entered room.
	ErrRoomNotEntered = errors.New("you must enter a room before you can send or receive messages")

	// ErrCannotConnect is returned when a driver fails to establish its transport.
	ErrCannotConnect = errors.New("cannot connect")
	// ErrNotConnected is returned when a driver is used before Connect or after Disconnect.
	ErrNotConnected = errors.New("not connected")
	// ErrRateLimited is returned when a transport refuses a trigger for exceeding its rate.
	ErrRateLimited = errors.New("rate limited")
	// ErrBadRequest is returned for malformed events.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized is returned when a transport rejects the caller's identity.
	ErrUnauthorized = errors.New("unauthorized")
)

var sentinels = map[string]error{
	ErrCodeRoomNotAllowed: ErrRoomNotAllowed,
	ErrCodeNotInRoom:      ErrNotInRoom,
	ErrCodeRoomNotEntered: ErrRoomNotEntered,
	ErrCodeBadRequest:     ErrBadRequest,
	ErrCodeUnauthorized:   ErrUnauthorized,
	ErrCodeCannotConnect:  ErrCannotConnect,
	ErrCodeNotConnected:   ErrNotConnected,
	ErrCodeRateLimited:    ErrRateLimited,
}

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel matching the code, so errors.Is works on errors
// rebuilt from the wire.
func (e *CoreError) Unwrap() error {
	return sentinels[e.Code]
}

// NewCoreError builds a CoreError.
func NewCoreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// CodeOf returns the error code for err, or ErrCodeInternal when none applies.
func CodeOf(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrCodeInternal
}
