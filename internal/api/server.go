package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"breakout/pkg/interfaces"
	"breakout/pkg/types"
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// SessionView is the read-only slice of session.Manager the API needs.
type SessionView interface {
	Rooms() []types.RoomView
	InstructorConnected() bool
	GetStats() map[string]int
}

// Server exposes broker state over HTTP. It holds no state of its own.
type Server struct {
	sessions  SessionView
	audit     interfaces.AuditLog
	router    *http.ServeMux
	startedAt time.Time
}

// NewServer creates the API. audit may be nil when the audit log is disabled; ws, when
// non-nil, is mounted at /ws.
func NewServer(sessions SessionView, audit interfaces.AuditLog, ws http.Handler) *Server {
	s := &Server{
		sessions:  sessions,
		audit:     audit,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listRooms))))
	s.router.Handle("/api/events", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.listEvents))))
	if ws != nil {
		s.router.Handle("/ws", ws)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type RoomsResponse struct {
	InstructorConnected bool             `json:"instructor_connected"`
	Rooms               []types.RoomView `json:"rooms"`
}

type EventsResponse struct {
	Events []*types.Event `json:"events"`
	Limit  int            `json:"limit"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "disabled"
	if s.audit != nil {
		dbStatus = "healthy"
		if err := s.audit.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.sessions.GetStats(),
		System: map[string]interface{}{
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		},
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// GET /api/rooms
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_ = json.NewEncoder(w).Encode(RoomsResponse{
		InstructorConnected: s.sessions.InstructorConnected(),
		Rooms:               s.sessions.Rooms(),
	})
}

// GET /api/events?limit=N
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		s.sendError(w, "Audit log is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxEventLimit)
	}

	events, err := s.audit.RecentEvents(r.Context(), limit)
	if err != nil {
		s.sendError(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	_ = json.NewEncoder(w).Encode(EventsResponse{Events: events, Limit: limit})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
