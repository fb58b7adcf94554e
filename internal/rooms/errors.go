package rooms

import "errors"

var (
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotMember     = errors.New("member is not in any room")
	ErrAlreadyMember = errors.New("member is already in a room")
)
