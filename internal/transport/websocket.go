package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// WSPeer is a WebSocket client. One text frame is one message.
type WSPeer struct {
	id      string
	conn    *websocket.Conn
	opts    Options
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewWSPeer wraps an upgraded connection and starts its heartbeat.
func NewWSPeer(conn *websocket.Conn, opts Options) *WSPeer {
	opts = opts.withDefaults()
	p := &WSPeer{
		id:   uuid.New().String(),
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}

	conn.SetReadLimit(int64(opts.MaxMessageBytes))
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go p.pingLoop()
	return p
}

func (p *WSPeer) ID() string         { return p.id }
func (p *WSPeer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

func (p *WSPeer) pingLoop() {
	ticker := time.NewTicker(p.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

// Receive blocks for the next text frame. Binary frames are skipped.
func (p *WSPeer) Receive() (string, error) {
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrPeerGone, err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !utf8.Valid(data) {
			return "", ErrInvalidUTF8
		}
		return string(data), nil
	}
}

// Send writes msg as one text frame.
func (p *WSPeer) Send(msg string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.done:
		return ErrPeerGone
	default:
	}

	if err := p.conn.SetWriteDeadline(deadline(p.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	}
	return nil
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (p *WSPeer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = p.conn.Close()
	})
	return err
}
