// Package protocol parses and formats the plain-text wire protocol spoken between the
// broker and its clients. Raw strings are parsed once at the connection boundary; the
// rest of the broker only handles the typed forms defined here.
package protocol

import (
	"strings"
	"unicode"

	"breakout/pkg/types"
)

// MaxMessageBytes caps a single logical message.
const MaxMessageBytes = 1024

const (
	// DisconnectNotice is the literal a client sends before leaving.
	DisconnectNotice = "DISCONNECT"

	// UserListPrefix starts every presence payload.
	UserListPrefix = "USER_LIST|"

	loginSeparator = "|"
	entrySeparator = ";"
	commandPrefix  = "/"
	rejectedMarker = "rejected"
)

// Kind tags an inbound message.
type Kind int

const (
	KindChat Kind = iota + 1
	KindCommand
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindCommand:
		return "command"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Login is the first record a client sends.
type Login struct {
	Role     string // trimmed and lower-cased, not yet validated
	Username string
}

// Command is a slash-command with its unparsed argument string.
type Command struct {
	Name string
	Args string
}

// Inbound is one parsed client message.
type Inbound struct {
	Kind    Kind
	Text    string
	Command Command
}

// ParseLogin splits "<role>|<username>". A record without a separator yields an empty
// username.
func ParseLogin(raw string) Login {
	role, username, _ := strings.Cut(raw, loginSeparator)
	return Login{
		Role:     strings.ToLower(strings.TrimSpace(role)),
		Username: strings.TrimSpace(username),
	}
}

// ParseInbound classifies a raw message. It reports false for blank input.
func ParseInbound(raw string) (Inbound, bool) {
	text := strings.TrimRight(raw, "\r\n")
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Inbound{}, false
	}

	if trimmed == DisconnectNotice {
		return Inbound{Kind: KindDisconnect}, true
	}

	if strings.HasPrefix(trimmed, commandPrefix) {
		name := strings.TrimPrefix(trimmed, commandPrefix)
		var args string
		if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
			name, args = name[:i], strings.TrimSpace(name[i:])
		}
		return Inbound{
			Kind:    KindCommand,
			Text:    trimmed,
			Command: Command{Name: name, Args: args},
		}, true
	}

	return Inbound{Kind: KindChat, Text: text}, true
}

// Fields returns the whitespace-separated arguments.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

// Split returns at most n arguments; the last one holds the remainder of the line with
// its inner spacing preserved.
func (c Command) Split(n int) []string {
	var out []string
	rest := strings.TrimSpace(c.Args)
	for len(out) < n-1 && rest != "" {
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// FormatLogin builds the login record a client sends.
func FormatLogin(role types.Role, username string) string {
	return string(role) + loginSeparator + username
}

// FormatChat renders a routed chat line.
func FormatChat(username, text string) string {
	return username + ": " + text
}

// FormatWhisperFrom renders a whisper as seen by its recipient.
func FormatWhisperFrom(sender, text string) string {
	return "[Whisper from " + sender + "]: " + text
}

// FormatWhisperTo renders the copy echoed back to the whisperer.
func FormatWhisperTo(target, text string) string {
	return "[Whisper to " + target + "]: " + text
}

// FormatRejection renders an admission rejection. Clients match on "rejected".
func FormatRejection(reason string) string {
	return "Connection rejected: " + reason + "."
}

// IsRejection reports whether an admission reply is a rejection.
func IsRejection(reply string) bool {
	return strings.Contains(reply, rejectedMarker)
}

// FormatPresence serializes a membership snapshot as "USER_LIST|e1;e2;...".
func FormatPresence(entries []types.Presence) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return UserListPrefix + strings.Join(parts, entrySeparator)
}

// ParsePresence splits a presence payload back into entry strings.
func ParsePresence(payload string) ([]string, bool) {
	body, ok := strings.CutPrefix(payload, UserListPrefix)
	if !ok {
		return nil, false
	}
	if body == "" {
		return []string{}, true
	}
	return strings.Split(body, entrySeparator), true
}
