package router

import (
	"context"
	"log/slog"
	"strconv"

	"breakout/internal/session"
	"breakout/pkg/types"
)

// Disconnect reasons, recorded in the audit log and in logs.
const (
	ReasonQuit             = "quit"
	ReasonDisconnectNotice = "disconnect notice"
	ReasonConnectionClosed = "connection closed"
	ReasonKicked           = "kicked"
	ReasonSendFailed       = "send failed"
	ReasonSessionEnded     = "session ended"
	ReasonShutdown         = "server shutdown"
)

// NoticeSessionEnded is sent to every student when the instructor leaves.
const NoticeSessionEnded = "The instructor has disconnected. Session ended."

// Disconnect removes p from the session and closes its connection. When p is the
// instructor every student is told the session ended and closed as well. Calling it
// again for the same participant does nothing.
func (r *Router) Disconnect(ctx context.Context, p *session.Participant, reason string) {
	dep, removed := r.sessions.Remove(p)
	if !removed {
		return
	}

	r.logger.Info("Participant disconnected",
		slog.String("username", p.Username),
		slog.String("role", string(p.Role)),
		slog.String("room", dep.Room),
		slog.String("reason", reason))

	for _, student := range dep.Evicted {
		if err := student.Peer.Send(NoticeSessionEnded); err != nil {
			r.logger.Debug("Session end notice not delivered", slog.String("username", student.Username))
		}
		if err := student.Peer.Close(); err != nil {
			r.logger.Debug("Close failed", slog.String("username", student.Username), slog.String("error", err.Error()))
		}
		r.Record(ctx, types.EventDisconnected, student.Username, "", "", ReasonSessionEnded)
	}
	if dep.WasInstructor {
		r.Record(ctx, types.EventSessionEnded, p.Username, "", "", strconv.Itoa(len(dep.Evicted))+" students disconnected")
	}

	if err := p.Peer.Close(); err != nil {
		r.logger.Debug("Close failed", slog.String("username", p.Username), slog.String("error", err.Error()))
	}
	r.Record(ctx, types.EventDisconnected, p.Username, "", dep.Room, reason)
}

// DisconnectAll closes every active participant. Used on shutdown.
func (r *Router) DisconnectAll(ctx context.Context, reason string) int {
	_, participants := r.sessions.Snapshot()
	for _, p := range participants {
		r.Disconnect(ctx, p, reason)
	}
	return len(participants)
}
