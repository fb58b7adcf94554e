package transport

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"breakout/pkg/interfaces"
	"breakout/pkg/logging"
)

// echoHandler replies "echo:<msg>" until the peer goes away.
func echoHandler(received chan<- string) ConnHandler {
	return ConnHandlerFunc(func(ctx context.Context, peer interfaces.Peer) {
		for {
			msg, err := peer.Receive()
			if err != nil {
				return
			}
			if received != nil {
				received <- msg
			}
			if err := peer.Send("echo:" + msg); err != nil {
				return
			}
		}
	})
}

func startListener(t *testing.T, handler ConnHandler) (*Listener, context.CancelFunc, <-chan error) {
	t.Helper()
	l, err := NewListener("127.0.0.1:0", Options{WriteTimeout: time.Second}, handler, logging.Discard())
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	return l, cancel, done
}

func TestNewListener_NilHandler(t *testing.T) {
	if _, err := NewListener(":0", Options{}, nil, logging.Discard()); err != ErrNilHandler {
		t.Errorf("Expected ErrNilHandler, got %v", err)
	}
}

func TestTCP_EchoRoundTrip(t *testing.T) {
	l, cancel, done := startListener(t, echoHandler(nil))
	defer cancel()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("student|S1")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := string(buf[:n]); got != "echo:student|S1" {
		t.Errorf("Expected echo, got %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestTCP_ShutdownClosesOpenConnections(t *testing.T) {
	l, cancel, done := startListener(t, echoHandler(nil))

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for l.ActiveConnections() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.ActiveConnections() != 1 {
		t.Fatalf("Expected 1 active connection, got %d", l.ActiveConnections())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return with a client still connected")
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 16)); err == nil {
		t.Error("Client should observe the server closing its connection")
	}
}

func TestTCPPeer_ReceiveLimitsAndErrors(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	peer := NewTCPPeer(server, Options{MaxMessageBytes: 8})

	go func() {
		_, _ = client.Write([]byte("0123456789"))
		_, _ = client.Write([]byte{0xff, 0xfe})
	}()

	msg, err := peer.Receive()
	if err != nil || msg != "01234567" {
		t.Errorf("Expected first 8 bytes, got %q, %v", msg, err)
	}
	msg, err = peer.Receive()
	if err != nil || msg != "89" {
		t.Errorf("Expected remainder, got %q, %v", msg, err)
	}
	if _, err := peer.Receive(); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("Expected ErrInvalidUTF8, got %v", err)
	}

	_ = peer.Close()
	if _, err := peer.Receive(); !errors.Is(err, ErrPeerGone) {
		t.Errorf("Expected ErrPeerGone after close, got %v", err)
	}
	if err := peer.Send("late"); !errors.Is(err, ErrPeerGone) {
		t.Errorf("Expected ErrPeerGone on send after close, got %v", err)
	}
	if err := peer.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestTCPPeer_WriteTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	peer := NewTCPPeer(server, Options{WriteTimeout: 20 * time.Millisecond})

	// Nobody reads from client, so the pipe write blocks until the deadline.
	err := peer.Send("hello")
	if !errors.Is(err, ErrPeerGone) {
		t.Errorf("Expected ErrPeerGone from a stalled write, got %v", err)
	}
}

func TestTCPPeer_ConcurrentSends(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	peer := NewTCPPeer(server, Options{WriteTimeout: time.Second})

	var got strings.Builder
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 64)
		for {
			n, err := client.Read(buf)
			if err != nil {
				return
			}
			got.Write(buf[:n])
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = peer.Send("[msg]")
		}()
	}
	wg.Wait()
	_ = peer.Close()
	<-readDone

	if got.String() != strings.Repeat("[msg]", 10) {
		t.Errorf("Writes interleaved: %q", got.String())
	}
}

func TestGateway_TextFrames(t *testing.T) {
	received := make(chan string, 4)
	gw, err := NewGateway(context.Background(), Options{WriteTimeout: time.Second}, echoHandler(received), logging.Discard())
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("ignored")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("instructor|T")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if messageType != websocket.TextMessage || string(data) != "echo:instructor|T" {
		t.Errorf("Expected text echo, got %d %q", messageType, data)
	}
	if msg := <-received; msg != "instructor|T" {
		t.Errorf("Binary frame should be skipped, handler saw %q first", msg)
	}

	gw.Shutdown()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Client should observe the gateway closing its connection")
	}
	if gw.ActiveConnections() != 0 {
		t.Errorf("Expected no active connections after shutdown, got %d", gw.ActiveConnections())
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{PingInterval: 10 * time.Second, PongWait: time.Second, WriteTimeout: -1}.withDefaults()
	if o.MaxMessageBytes != 1024 {
		t.Errorf("Expected 1024 byte limit, got %d", o.MaxMessageBytes)
	}
	if o.PongWait <= o.PingInterval {
		t.Errorf("Pong wait %v must exceed ping interval %v", o.PongWait, o.PingInterval)
	}
	if o.WriteTimeout != 0 {
		t.Errorf("Negative write timeout should disable the deadline, got %v", o.WriteTimeout)
	}
}
