package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"breakout/pkg/interfaces"
	"breakout/pkg/types"
	dbconfig "breakout/pkg/database"
)

// MaxRecentEvents caps RecentEvents.
const MaxRecentEvents = 500

// Manager implements interfaces.AuditLog on SQLite. Reads run concurrently; writes go
// through a single writer goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	logger       *slog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the writer.
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		logger:       logger.With(slog.String("component", "database")),
	}

	m.wg.Add(1)
	go m.writeLoop()

	m.logger.Info("Audit database ready", slog.String("path", config.DatabasePath))
	return m, nil
}

// writeLoop runs every write. A failed write is retried once after RetryDelay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && m.config.RetryDelay > 0 {
				m.logger.Warn("Database write failed, retrying",
					slog.Duration("delay", m.config.RetryDelay),
					slog.String("error", err.Error()))
				time.Sleep(m.config.RetryDelay)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error("Database write failed after retry", slog.String("error", err.Error()))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrAuditClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return errors.New("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrAuditClosed
	}

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errors.New("write operation timeout")
	}
}

// RecordEvent validates and stores one event, filling in its ID and timestamp when
// they are empty.
func (m *Manager) RecordEvent(ctx context.Context, event *types.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO events (id, type, actor, target, room, detail, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			event.ID,
			event.Type,
			event.Actor,
			event.Target,
			event.Room,
			event.Detail,
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

// RecentEvents returns up to limit events, newest first. limit is clamped to
// [1, MaxRecentEvents].
func (m *Manager) RecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxRecentEvents {
		limit = MaxRecentEvents
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, type, actor, target, room, detail, timestamp
		FROM events
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*types.Event, 0, limit)
	for rows.Next() {
		var e types.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Actor, &e.Target, &e.Room, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of stored events of eventType, or of all types when
// eventType is empty.
func (m *Manager) CountEvents(ctx context.Context, eventType string) (int, error) {
	query := "SELECT COUNT(*) FROM events"
	args := []interface{}{}
	if eventType != "" {
		query += " WHERE type = ?"
		args = append(args, eventType)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// HealthCheck validates connectivity and that the events table is readable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB exposes the handle for schema validation.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the database. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
