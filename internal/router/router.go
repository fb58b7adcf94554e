// Package router turns parsed client messages into deliveries: room chat, slash-commands
// and disconnections. Recipients are resolved through session.Manager; every network
// send happens after the manager has released its lock.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"breakout/internal/mute"
	"breakout/internal/session"
	"breakout/pkg/interfaces"
	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

// Options tunes command behaviour.
type Options struct {
	DefaultMute time.Duration
}

// Router implements chat routing, the command processor and the disconnection handler.
type Router struct {
	sessions    *session.Manager
	audit       interfaces.AuditLog
	defaultMute time.Duration
	handlers    map[string]commandSpec
	logger      *slog.Logger
}

// NewRouter creates a router. audit may be nil.
func NewRouter(sessions *session.Manager, audit interfaces.AuditLog, opts Options, logger *slog.Logger) *Router {
	if opts.DefaultMute <= 0 {
		opts.DefaultMute = mute.DefaultDuration
	}
	r := &Router{
		sessions:    sessions,
		audit:       audit,
		defaultMute: opts.DefaultMute,
		logger:      logger.With(slog.String("component", "router")),
	}
	r.handlers = r.commandTable()
	return r
}

// Dispatch handles one inbound message from p. It returns false once p's connection
// should stop reading, either because p left or because p was disconnected while the
// message was handled.
func (r *Router) Dispatch(ctx context.Context, p *session.Participant, in protocol.Inbound) bool {
	switch in.Kind {
	case protocol.KindDisconnect:
		r.Disconnect(ctx, p, ReasonDisconnectNotice)
		return false
	case protocol.KindCommand:
		if !r.Execute(ctx, p, in.Command) {
			return false
		}
	case protocol.KindChat:
		r.Route(ctx, p, in.Text)
	}
	return r.sessions.IsActive(p)
}

// Route delivers a chat line to every other member of the sender's room. Muted senders
// are told so and nothing is delivered.
func (r *Router) Route(ctx context.Context, sender *session.Participant, text string) {
	if text == "" {
		return
	}

	recipients, mutedFor, err := r.sessions.PrepareChat(sender)
	if err != nil {
		r.logger.Debug("Dropping chat from inactive participant", slog.String("username", sender.Username))
		return
	}
	if mutedFor > 0 {
		r.logger.Debug("Dropping chat from muted participant",
			slog.String("username", sender.Username),
			slog.Duration("remaining", mutedFor))
		r.send(ctx, sender, ReplyMuted)
		return
	}

	line := protocol.FormatChat(sender.Username, text)
	for _, recipient := range recipients {
		r.send(ctx, recipient, line)
	}
}

// send delivers msg to p. A failed send disconnects p.
func (r *Router) send(ctx context.Context, p *session.Participant, msg string) bool {
	if err := p.Peer.Send(msg); err != nil {
		r.logger.Warn("Delivery failed",
			slog.String("username", p.Username),
			slog.String("conn_id", p.ID),
			slog.String("error", err.Error()))
		r.Disconnect(ctx, p, ReasonSendFailed)
		return false
	}
	return true
}

// Record appends an event to the audit log, if one is configured. Failures are logged
// and otherwise ignored.
func (r *Router) Record(ctx context.Context, eventType, actor, target, room, detail string) {
	if r.audit == nil {
		return
	}
	event := &types.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Actor:     actor,
		Target:    target,
		Room:      room,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := r.audit.RecordEvent(ctx, event); err != nil {
		r.logger.Warn("Failed to record audit event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
	}
}
