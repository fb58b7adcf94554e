// Package relay runs one client connection from login to disconnect: admission, then a
// read loop feeding the router.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"breakout/internal/router"
	"breakout/internal/session"
	"breakout/pkg/interfaces"
	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

// DefaultLoginTimeout bounds how long a connection may stay silent before logging in.
const DefaultLoginTimeout = 30 * time.Second

// ErrLoginTimeout is reported when no login record arrives in time.
var ErrLoginTimeout = errors.New("login timed out")

// Relay implements transport.ConnHandler.
type Relay struct {
	sessions     *session.Manager
	router       *router.Router
	loginTimeout time.Duration
	logger       *slog.Logger
}

// NewRelay creates a relay. A zero loginTimeout uses DefaultLoginTimeout.
func NewRelay(sessions *session.Manager, r *router.Router, loginTimeout time.Duration, logger *slog.Logger) *Relay {
	if loginTimeout <= 0 {
		loginTimeout = DefaultLoginTimeout
	}
	return &Relay{
		sessions:     sessions,
		router:       r,
		loginTimeout: loginTimeout,
		logger:       logger.With(slog.String("component", "relay")),
	}
}

// ServeConn admits peer and relays its messages until it leaves. The peer is closed
// before ServeConn returns.
func (r *Relay) ServeConn(ctx context.Context, peer interfaces.Peer) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Connection handler panicked",
				slog.String("conn_id", peer.ID()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			_ = peer.Close()
		}
	}()

	p, err := r.admit(ctx, peer)
	if err != nil {
		r.logger.Info("Connection not admitted",
			slog.String("conn_id", peer.ID()),
			slog.String("remote_addr", peer.RemoteAddr()),
			slog.String("error", err.Error()))
		_ = peer.Close()
		return
	}

	defer r.router.Disconnect(ctx, p, router.ReasonConnectionClosed)

	for {
		raw, err := peer.Receive()
		if err != nil {
			if errors.Is(err, interfaces.ErrPeerClosed) {
				r.logger.Debug("Connection closed", slog.String("username", p.Username))
			} else {
				r.logger.Warn("Read failed", slog.String("username", p.Username), slog.String("error", err.Error()))
			}
			return
		}
		in, ok := protocol.ParseInbound(raw)
		if !ok {
			continue
		}
		if !r.router.Dispatch(ctx, p, in) {
			return
		}
	}
}

type readResult struct {
	raw string
	err error
}

// admit reads the login record and applies the admission policy. Rejected peers are
// told why.
func (r *Relay) admit(ctx context.Context, peer interfaces.Peer) (*session.Participant, error) {
	results := make(chan readResult, 1)
	go func() {
		raw, err := peer.Receive()
		results <- readResult{raw: raw, err: err}
	}()

	timer := time.NewTimer(r.loginTimeout)
	defer timer.Stop()

	var res readResult
	select {
	case res = <-results:
	case <-timer.C:
		_ = peer.Close()
		return nil, ErrLoginTimeout
	case <-ctx.Done():
		_ = peer.Close()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, fmt.Errorf("reading login: %w", res.err)
	}

	login := protocol.ParseLogin(res.raw)
	p, err := r.sessions.Admit(peer, login)
	if err != nil {
		reason := "Admission failed"
		var admissionErr *session.AdmissionError
		if errors.As(err, &admissionErr) {
			reason = admissionErr.Reason
		}
		if sendErr := peer.Send(protocol.FormatRejection(reason)); sendErr != nil {
			r.logger.Debug("Rejection not delivered", slog.String("conn_id", peer.ID()))
		}
		r.router.Record(ctx, types.EventRejected, login.Username, "", "", reason)
		return nil, err
	}

	if err := peer.Send(fmt.Sprintf("%s connected successfully!", p.Role.Title())); err != nil {
		r.router.Disconnect(ctx, p, router.ReasonSendFailed)
		return nil, err
	}

	r.logger.Info("Participant admitted",
		slog.String("username", p.Username),
		slog.String("role", string(p.Role)),
		slog.String("conn_id", p.ID),
		slog.String("remote_addr", peer.RemoteAddr()))
	r.router.Record(ctx, types.EventAdmitted, p.Username, "", types.MainRoom, string(p.Role))
	return p, nil
}
