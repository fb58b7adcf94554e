package types

import (
	"regexp"
)

// Compiled once; usernames and room names travel inside space-delimited commands.
var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 32 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidRoomName checks if a room name meets format requirements.
func IsValidRoomName(name string) bool {
	if len(name) < 1 || len(name) > 32 {
		return false
	}
	return roomNameRegex.MatchString(name)
}

// IsValidEventType checks if the event type is one the audit log accepts.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventAdmitted,
		EventRejected,
		EventDisconnected,
		EventKicked,
		EventMuted,
		EventMoved,
		EventRoomCreated,
		EventCalledBack,
		EventSessionEnded:
		return true
	default:
		return false
	}
}

// Validate ensures the event can be stored.
func (e *Event) Validate() error {
	if !IsValidEventType(e.Type) {
		return ErrInvalidEventType
	}
	if len(e.Actor) > 1024 || len(e.Detail) > 1024 {
		return ErrEventTooLarge
	}
	return nil
}
