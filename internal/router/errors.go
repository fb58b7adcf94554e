package router

import "errors"

// Replies sent to the caller when a command or chat message cannot be carried out.
const (
	ReplyInvalidCommand  = "Invalid command or insufficient permissions"
	ReplyMuted           = "You are muted"
	ReplyUserNotFound    = "User not found"
	ReplyWhisperRoomOnly = "You can only whisper to users in your room"
	ReplyKickSelf        = "You cannot kick yourself"
	ReplyMuteSelf        = "You cannot mute yourself"
	ReplyRoomExists      = "Room already exists"
	ReplyInvalidMove     = "Invalid room name or user not found"
	ReplyInvalidRoom     = "Invalid room name"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotPermitted   = errors.New("command requires the instructor role")
	ErrMalformedArgs  = errors.New("malformed command arguments")
)

// CommandError is a failed command together with the reply its caller receives.
type CommandError struct {
	Reply string
	Err   error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return e.Reply
	}
	return e.Reply + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func replyError(reply string, err error) *CommandError {
	return &CommandError{Reply: reply, Err: err}
}

func invalidCommand(err error) *CommandError {
	return &CommandError{Reply: ReplyInvalidCommand, Err: err}
}
