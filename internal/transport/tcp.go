package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TCPPeer is a raw TCP client. Each read of up to MaxMessageBytes is one message and
// each Send is one write.
type TCPPeer struct {
	id      string
	conn    net.Conn
	buf     []byte
	opts    Options
	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
}

// NewTCPPeer wraps an accepted connection.
func NewTCPPeer(conn net.Conn, opts Options) *TCPPeer {
	opts = opts.withDefaults()
	return &TCPPeer{
		id:   uuid.New().String(),
		conn: conn,
		buf:  make([]byte, opts.MaxMessageBytes),
		opts: opts,
	}
}

func (p *TCPPeer) ID() string         { return p.id }
func (p *TCPPeer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// Receive blocks for the next message.
func (p *TCPPeer) Receive() (string, error) {
	if p.closed.Load() {
		return "", ErrPeerGone
	}
	n, err := p.conn.Read(p.buf)
	if n == 0 {
		if err == nil {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrPeerGone, err)
	}
	data := p.buf[:n]
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}

// Send writes msg as one message. Writes are serialized and bounded by the write
// timeout.
func (p *TCPPeer) Send(msg string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.closed.Load() {
		return ErrPeerGone
	}
	if err := p.conn.SetWriteDeadline(deadline(p.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	}
	if _, err := p.conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerGone, err)
	}
	return nil
}

// Close closes the socket. Safe to call more than once.
func (p *TCPPeer) Close() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		err = p.conn.Close()
	})
	return err
}
