package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"breakout/internal/config"
	"breakout/pkg/logging"
	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.TCPAddr = "127.0.0.1:0"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "audit.db")
	cfg.Broker.PresenceInterval = 50 * time.Millisecond
	cfg.Broker.LoginTimeout = 2 * time.Second
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := NewApplication(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return app
}

type client struct {
	conn   net.Conn
	mu     sync.Mutex
	buf    strings.Builder
	closed chan struct{}
}

func connect(t *testing.T, addr string, role types.Role, username string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &client{conn: conn, closed: make(chan struct{})}
	go func() {
		defer close(c.closed)
		data := make([]byte, 1024)
		for {
			n, err := conn.Read(data)
			if n > 0 {
				c.mu.Lock()
				c.buf.Write(data[:n])
				c.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	if _, err := conn.Write([]byte(protocol.FormatLogin(role, username))); err != nil {
		t.Fatalf("Login write failed: %v", err)
	}
	c.waitFor(t, "connected successfully!")
	return c
}

func (c *client) send(t *testing.T, msg string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
}

func (c *client) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := c.buf.String()
		c.mu.Unlock()
		if strings.Contains(got, want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %q", want)
}

func getJSON(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.DefaultMute = 0
	if _, err := NewApplication(cfg, logging.Discard()); err == nil {
		t.Error("Expected error for invalid configuration")
	}
}

func TestApplication_ClassroomOverTCPAndHTTP(t *testing.T) {
	app := startApp(t, testConfig(t))

	instructor := connect(t, app.TCPAddr(), types.RoleInstructor, "T")
	student := connect(t, app.TCPAddr(), types.RoleStudent, "S1")

	instructor.send(t, "/create_room lab")
	instructor.send(t, "/move_to_room S1 lab")
	student.waitFor(t, "USER_LIST|")

	base := "http://" + app.HTTPAddr()
	code, body := getJSON(t, base+"/api/rooms")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from /api/rooms, got %d", code)
	}
	if got := gjson.Get(body, `rooms.#(name=="lab").members.0.username`).String(); got != "S1" {
		t.Errorf("Expected S1 in lab, got %q (%s)", got, body)
	}

	code, body = getJSON(t, base+"/api/events?limit=10")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from /api/events, got %d", code)
	}
	kinds := gjson.Get(body, "events.#.type").Array()
	seen := map[string]bool{}
	for _, v := range kinds {
		seen[v.String()] = true
	}
	for _, want := range []string{"admitted", "room_created", "moved"} {
		if !seen[want] {
			t.Errorf("Expected %s event in audit log, got %s", want, body)
		}
	}

	code, body = getJSON(t, base+"/health")
	if code != http.StatusOK || gjson.Get(body, "database").String() != "healthy" {
		t.Errorf("Unexpected health response %d %s", code, body)
	}
}

func TestApplication_StopDisconnectsParticipants(t *testing.T) {
	app, err := NewApplication(testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	instructor := connect(t, app.TCPAddr(), types.RoleInstructor, "T")
	student := connect(t, app.TCPAddr(), types.RoleStudent, "S1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}

	for _, c := range []*client{instructor, student} {
		select {
		case <-c.closed:
		case <-time.After(2 * time.Second):
			t.Fatal("Connection not closed on shutdown")
		}
	}
	if app.Sessions().InstructorConnected() {
		t.Error("No participant should remain after Stop")
	}
}

func TestApplication_WithoutDatabaseAndHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = false
	cfg.HTTP.Enabled = false
	app := startApp(t, cfg)

	if app.HTTPAddr() != "" {
		t.Errorf("Expected no HTTP address, got %s", app.HTTPAddr())
	}
	instructor := connect(t, app.TCPAddr(), types.RoleInstructor, "T")
	instructor.send(t, "/create_room lab")
	if rooms := app.Sessions().Rooms(); len(rooms) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(rooms))
	}
}

func TestApplication_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.HTTP.Addr = ln.Addr().String()
	app, err := NewApplication(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer app.Stop(context.Background())

	if err := app.Start(context.Background()); err == nil {
		t.Error("Expected bind error for a busy HTTP port")
	}
}
