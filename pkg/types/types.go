package types

import (
	"fmt"
	"time"
)

// Role is the self-declared role a participant logs in with.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// MainRoom is the default room every participant is admitted into. It is never deleted.
const MainRoom = "main"

// Title returns the capitalized role name used in presence entries.
func (r Role) Title() string {
	switch r {
	case RoleInstructor:
		return "Instructor"
	case RoleStudent:
		return "Student"
	default:
		return string(r)
	}
}

// ParseRole maps the wire value to a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleInstructor, RoleStudent:
		return Role(s), true
	default:
		return "", false
	}
}

// Presence is one entry of the membership snapshot pushed to every client.
type Presence struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Room     string `json:"room"`
	Muted    bool   `json:"muted,omitempty"`
}

// String renders the entry as "<username> (<Role>, Room: <room>)".
func (p Presence) String() string {
	return fmt.Sprintf("%s (%s, Room: %s)", p.Username, p.Role.Title(), p.Room)
}

// RoomView is a read-only view of a room and its members.
type RoomView struct {
	Name    string     `json:"name"`
	Members []Presence `json:"members"`
}

// Audit event types recorded by the broker.
const (
	EventAdmitted     = "admitted"
	EventRejected     = "rejected"
	EventDisconnected = "disconnected"
	EventKicked       = "kicked"
	EventMuted        = "muted"
	EventMoved        = "moved"
	EventRoomCreated  = "room_created"
	EventCalledBack   = "called_back"
	EventSessionEnded = "session_ended"
)

// Event is one audit log entry. Actor is the username that caused it; Target is the
// username acted upon, if any.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target,omitempty"`
	Room      string    `json:"room,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
