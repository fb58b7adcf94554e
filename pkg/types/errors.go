package types

import "errors"

var (
	ErrInvalidUsername  = errors.New("username must be 1-32 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomName  = errors.New("room name must be 1-32 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrEventTooLarge    = errors.New("event actor or detail exceeds 1024 bytes")
)
