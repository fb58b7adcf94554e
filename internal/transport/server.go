package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"breakout/pkg/interfaces"
)

// tracker remembers live peers so shutdown can close the ones still logging in.
type tracker struct {
	mu    sync.Mutex
	peers map[string]interfaces.Peer
	wg    sync.WaitGroup
}

func newTracker() *tracker {
	return &tracker{peers: make(map[string]interfaces.Peer)}
}

// add must be called before serve, on the accepting goroutine.
func (t *tracker) add(peer interfaces.Peer) {
	t.mu.Lock()
	t.peers[peer.ID()] = peer
	t.wg.Add(1)
	t.mu.Unlock()
}

func (t *tracker) serve(ctx context.Context, peer interfaces.Peer, handler ConnHandler) {
	defer func() {
		t.mu.Lock()
		delete(t.peers, peer.ID())
		t.mu.Unlock()
		_ = peer.Close()
		t.wg.Done()
	}()

	handler.ServeConn(ctx, peer)
}

func (t *tracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, peer := range t.peers {
		_ = peer.Close()
	}
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Listener accepts raw TCP clients and runs each through the handler on its own
// goroutine.
type Listener struct {
	addr    string
	opts    Options
	handler ConnHandler
	logger  *slog.Logger
	conns   *tracker

	mu sync.Mutex
	ln net.Listener
}

// NewListener creates a listener for addr. Call Listen, then Serve.
func NewListener(addr string, opts Options, handler ConnHandler, logger *slog.Logger) (*Listener, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	return &Listener{
		addr:    addr,
		opts:    opts,
		handler: handler,
		logger:  logger.With(slog.String("component", "tcp")),
		conns:   newTracker(),
	}, nil
}

// Listen binds the socket.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	l.logger.Info("TCP listener bound", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every connection still
// open and waits for their handlers to return. It binds first if Listen was not called.
func (l *Listener) Serve(ctx context.Context) error {
	if l.Addr() == nil {
		if err := l.Listen(); err != nil {
			return err
		}
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				l.logger.Warn("Accept timed out", slog.String("error", err.Error()))
				continue
			}
			serveErr = err
			break
		}

		peer := NewTCPPeer(conn, l.opts)
		l.logger.Debug("Connection accepted",
			slog.String("conn_id", peer.ID()),
			slog.String("remote_addr", peer.RemoteAddr()))
		l.conns.add(peer)
		go l.conns.serve(ctx, peer, l.handler)
	}

	_ = ln.Close()
	l.conns.closeAll()
	l.conns.wg.Wait()
	l.logger.Info("TCP listener stopped")
	return serveErr
}

// ActiveConnections counts connections whose handlers have not returned.
func (l *Listener) ActiveConnections() int {
	return l.conns.count()
}

// Gateway upgrades HTTP requests to WebSocket clients speaking the same text protocol.
type Gateway struct {
	ctx     context.Context
	opts    Options
	handler ConnHandler
	logger  *slog.Logger
	conns   *tracker
}

// NewGateway creates a gateway. Connections are served under ctx rather than the
// request context, which ends with the upgrade.
func NewGateway(ctx context.Context, opts Options, handler ConnHandler, logger *slog.Logger) (*Gateway, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	return &Gateway{
		ctx:     ctx,
		opts:    opts,
		handler: handler,
		logger:  logger.With(slog.String("component", "websocket")),
		conns:   newTracker(),
	}, nil
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	peer := NewWSPeer(conn, g.opts)
	g.logger.Debug("WebSocket connection accepted",
		slog.String("conn_id", peer.ID()),
		slog.String("remote_addr", peer.RemoteAddr()))
	g.conns.add(peer)
	g.conns.serve(g.ctx, peer, g.handler)
}

// Shutdown closes every open WebSocket connection and waits for their handlers.
func (g *Gateway) Shutdown() {
	g.conns.closeAll()
	g.conns.wg.Wait()
}

// ActiveConnections counts connections whose handlers have not returned.
func (g *Gateway) ActiveConnections() int {
	return g.conns.count()
}
