package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"breakout/internal/router"
	"breakout/pkg/protocol"
)

var (
	infoColor    = color.New(color.FgCyan).SprintFunc()
	noticeColor  = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	whisperColor = color.New(color.FgMagenta).SprintFunc()
	headerColor  = color.New(color.FgMagenta, color.Bold).SprintFunc()
	userColor    = color.New(color.FgGreen, color.Bold).SprintFunc()
	commandColor = color.New(color.FgBlue, color.Bold).SprintFunc()
)

// errorReplies are server replies shown as errors.
var errorReplies = []string{
	router.ReplyInvalidCommand,
	router.ReplyMuted,
	router.ReplyUserNotFound,
	router.ReplyWhisperRoomOnly,
	router.ReplyKickSelf,
	router.ReplyMuteSelf,
	router.ReplyRoomExists,
	router.ReplyInvalidMove,
	router.ReplyInvalidRoom,
}

// display renders server messages. Presence payloads are only printed when the
// membership list changes.
type display struct {
	out          io.Writer
	lastPresence string
}

func newDisplay(out io.Writer) *display {
	return &display{out: out}
}

// splitMessages separates presence payloads that arrived in the same read as other
// messages.
func splitMessages(chunk string) []string {
	var msgs []string
	for len(chunk) > 1 {
		i := strings.Index(chunk[1:], protocol.UserListPrefix)
		if i < 0 {
			break
		}
		msgs = append(msgs, chunk[:i+1])
		chunk = chunk[i+1:]
	}
	if chunk != "" {
		msgs = append(msgs, chunk)
	}
	return msgs
}

// Handle prints every message in one read from the server.
func (d *display) Handle(chunk string) {
	for _, msg := range splitMessages(chunk) {
		if line, ok := d.render(msg); ok {
			fmt.Fprintln(d.out, line)
		}
	}
}

// render formats one message. It reports false when nothing should be printed.
func (d *display) render(msg string) (string, bool) {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return "", false
	}

	if entries, ok := protocol.ParsePresence(msg); ok {
		if msg == d.lastPresence {
			return "", false
		}
		d.lastPresence = msg
		var b strings.Builder
		b.WriteString(headerColor(fmt.Sprintf("Online (%d):", len(entries))))
		for _, e := range entries {
			b.WriteString("\n  " + infoColor(e))
		}
		return b.String(), true
	}

	if strings.HasPrefix(msg, "[Whisper ") {
		return whisperColor(msg), true
	}
	if protocol.IsRejection(msg) {
		return errorColor(msg), true
	}
	for _, reply := range errorReplies {
		if msg == reply {
			return errorColor(msg), true
		}
	}
	if name, text, ok := strings.Cut(msg, ": "); ok && !strings.ContainsAny(name, " '") {
		return userColor(name) + ": " + text, true
	}
	return noticeColor(msg), true
}

// printRooms renders a /api/rooms response.
func printRooms(out io.Writer, body string) {
	if gjson.Get(body, "instructor_connected").Bool() {
		fmt.Fprintln(out, infoColor("Instructor connected"))
	} else {
		fmt.Fprintln(out, noticeColor("No instructor connected"))
	}
	gjson.Get(body, "rooms").ForEach(func(_, room gjson.Result) bool {
		members := room.Get("members")
		fmt.Fprintf(out, "%s %s\n", headerColor(room.Get("name").String()),
			infoColor(fmt.Sprintf("(%d)", len(members.Array()))))
		members.ForEach(func(_, m gjson.Result) bool {
			line := fmt.Sprintf("  %s %s", userColor(m.Get("username").String()), m.Get("role").String())
			if m.Get("muted").Bool() {
				line += " " + errorColor("(muted)")
			}
			fmt.Fprintln(out, line)
			return true
		})
		return true
	})
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, headerColor("Commands:"))
	fmt.Fprintf(out, "  %s - send a private message\n", commandColor("/whisper <user> <message>"))
	fmt.Fprintln(out, headerColor("Instructor commands:"))
	fmt.Fprintf(out, "  %s - disconnect a student\n", commandColor("/kick <user>"))
	fmt.Fprintf(out, "  %s - block a student's room chat\n", commandColor("/mute <user> [seconds]"))
	fmt.Fprintf(out, "  %s - create a breakout room\n", commandColor("/create_room <room>"))
	fmt.Fprintf(out, "  %s - move someone to a room\n", commandColor("/move_to_room <user> <room>"))
	fmt.Fprintf(out, "  %s - send a room's members back to main\n", commandColor("/call_back <room>"))
	fmt.Fprintf(out, "  %s - leave\n", commandColor("/quit"))
	fmt.Fprintln(out, infoColor("Anything else is sent to your room."))
}

func disableColor() {
	color.NoColor = true
}
