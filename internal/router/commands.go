package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"breakout/internal/rooms"
	"breakout/internal/session"
	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

// Notices sent to the targets of moderation commands.
const (
	NoticeKicked     = "You have been kicked by the instructor."
	NoticeCalledBack = "You have been called back to main."
)

type commandFunc func(ctx context.Context, sender *session.Participant, cmd protocol.Command) error

type commandSpec struct {
	instructorOnly bool
	run            commandFunc
}

func (r *Router) commandTable() map[string]commandSpec {
	return map[string]commandSpec{
		"whisper":      {instructorOnly: false, run: r.whisper},
		"kick":         {instructorOnly: true, run: r.kick},
		"mute":         {instructorOnly: true, run: r.mute},
		"create_room":  {instructorOnly: true, run: r.createRoom},
		"move_to_room": {instructorOnly: true, run: r.moveToRoom},
		"call_back":    {instructorOnly: true, run: r.callBack},
	}
}

// Execute runs a slash-command for sender. It returns false when the command ended the
// sender's session.
func (r *Router) Execute(ctx context.Context, sender *session.Participant, cmd protocol.Command) bool {
	if cmd.Name == "quit" {
		r.Disconnect(ctx, sender, ReasonQuit)
		return false
	}

	err := r.run(ctx, sender, cmd)
	if err == nil {
		return true
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		cmdErr = invalidCommand(err)
	}
	r.logger.Debug("Command failed",
		slog.String("username", sender.Username),
		slog.String("command", cmd.Name),
		slog.String("error", err.Error()))
	return r.send(ctx, sender, cmdErr.Reply)
}

func (r *Router) run(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	spec, exists := r.handlers[cmd.Name]
	if !exists {
		return invalidCommand(ErrUnknownCommand)
	}
	if spec.instructorOnly && !sender.IsInstructor() {
		return invalidCommand(ErrNotPermitted)
	}
	return spec.run(ctx, sender, cmd)
}

// /whisper <user> <text>
func (r *Router) whisper(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Split(2)
	if len(args) != 2 {
		return invalidCommand(ErrMalformedArgs)
	}
	username, text := args[0], args[1]

	target, err := r.sessions.WhisperTarget(sender, username)
	switch {
	case errors.Is(err, session.ErrUserNotFound):
		return replyError(ReplyUserNotFound, err)
	case errors.Is(err, session.ErrNotInSameRoom):
		return replyError(ReplyWhisperRoomOnly, err)
	case err != nil:
		return err
	}

	r.send(ctx, target, protocol.FormatWhisperFrom(sender.Username, text))
	r.send(ctx, sender, protocol.FormatWhisperTo(target.Username, text))
	return nil
}

// /kick <user>
func (r *Router) kick(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Fields()
	if len(args) != 1 {
		return invalidCommand(ErrMalformedArgs)
	}
	username := args[0]
	if username == sender.Username {
		return replyError(ReplyKickSelf, nil)
	}

	target, room, found := r.sessions.Lookup(username)
	if !found {
		return replyError(ReplyUserNotFound, session.ErrUserNotFound)
	}

	if err := target.Peer.Send(NoticeKicked); err != nil {
		r.logger.Debug("Kick notice not delivered", slog.String("username", username))
	}
	r.Disconnect(ctx, target, ReasonKicked)
	r.Record(ctx, types.EventKicked, sender.Username, username, room, "")

	notice := username + " has been kicked."
	informed := false
	for _, member := range r.sessions.Members(room) {
		if member == sender {
			informed = true
		}
		r.send(ctx, member, notice)
	}
	if !informed {
		r.send(ctx, sender, notice)
	}
	return nil
}

// /mute <user> [seconds]
func (r *Router) mute(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Fields()
	if len(args) < 1 || len(args) > 2 {
		return invalidCommand(ErrMalformedArgs)
	}
	username := args[0]

	duration := r.defaultMute
	if len(args) == 2 {
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds <= 0 || int64(seconds) > math.MaxInt64/int64(time.Second) {
			return invalidCommand(ErrMalformedArgs)
		}
		duration = time.Duration(seconds) * time.Second
	}

	if username == sender.Username {
		return replyError(ReplyMuteSelf, nil)
	}

	target, _, err := r.sessions.Mute(username, duration)
	if err != nil {
		return replyError(ReplyUserNotFound, err)
	}

	seconds := int(duration / time.Second)
	r.send(ctx, target, fmt.Sprintf("You have been muted for %d seconds.", seconds))
	r.send(ctx, sender, fmt.Sprintf("%s has been muted for %d seconds.", username, seconds))
	r.Record(ctx, types.EventMuted, sender.Username, username, "", strconv.Itoa(seconds)+"s")
	return nil
}

// /create_room <name>
func (r *Router) createRoom(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Fields()
	if len(args) != 1 {
		return invalidCommand(ErrMalformedArgs)
	}
	name := args[0]

	if err := r.sessions.CreateRoom(name); err != nil {
		if errors.Is(err, rooms.ErrRoomExists) {
			return replyError(ReplyRoomExists, err)
		}
		return replyError(ReplyInvalidRoom, err)
	}

	r.send(ctx, sender, fmt.Sprintf("Room '%s' created.", name))
	r.Record(ctx, types.EventRoomCreated, sender.Username, "", name, "")
	return nil
}

// /move_to_room <user> <room>
func (r *Router) moveToRoom(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Fields()
	if len(args) != 2 {
		return invalidCommand(ErrMalformedArgs)
	}
	username, room := args[0], args[1]

	target, err := r.sessions.Move(username, room)
	if err != nil {
		return replyError(ReplyInvalidMove, err)
	}

	r.send(ctx, target, fmt.Sprintf("You have been moved to room %s.", room))
	if target != sender {
		r.send(ctx, sender, fmt.Sprintf("%s has been moved to room %s.", username, room))
	}
	r.Record(ctx, types.EventMoved, sender.Username, username, room, "")
	return nil
}

// /call_back <room>
func (r *Router) callBack(ctx context.Context, sender *session.Participant, cmd protocol.Command) error {
	args := cmd.Fields()
	if len(args) != 1 {
		return invalidCommand(ErrMalformedArgs)
	}
	room := args[0]

	moved, err := r.sessions.CallBack(room)
	if err != nil {
		return replyError(ReplyInvalidRoom, err)
	}

	for _, p := range moved {
		r.send(ctx, p, NoticeCalledBack)
	}
	r.send(ctx, sender, fmt.Sprintf("Room '%s' called back to main.", room))
	r.Record(ctx, types.EventCalledBack, sender.Username, "", room, strconv.Itoa(len(moved))+" moved")
	return nil
}
