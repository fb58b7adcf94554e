package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	config := DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func migratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./data/breakout.db" {
		t.Errorf("Expected DatabasePath './data/breakout.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.RetryDelay != 5*time.Second {
		t.Errorf("Expected RetryDelay 5s, got %v", config.RetryDelay)
	}
	if !strings.Contains(config.DSN(), "_journal_mode=WAL") {
		t.Errorf("DSN should enable WAL, got %s", config.DSN())
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }, true},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, true},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -time.Second }, true},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrationManager_LoadEmbedded(t *testing.T) {
	migrations, err := NewMigrationManager(nil).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations failed: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("Expected at least one embedded migration")
	}
	if migrations[0].Version != "001" || migrations[0].Description != "initial_schema" {
		t.Errorf("Unexpected first migration %+v", migrations[0])
	}
}

func TestMigrationManager_ApplyMigrationsIdempotent(t *testing.T) {
	db := migratedDB(t)
	mm := NewMigrationManager(db)

	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("Reapplying migrations should be a no-op, got %v", err)
	}
	versions, err := mm.AppliedVersions()
	if err != nil {
		t.Fatalf("AppliedVersions failed: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001" {
		t.Errorf("Expected [001], got %v", versions)
	}
}

func TestMigrationManager_OrderAndFailure(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER);")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}
	mm := NewMigrationManagerFS(db, source)
	if err := mm.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	versions, _ := mm.AppliedVersions()
	if len(versions) != 2 || versions[0] != "001" || versions[1] != "002" {
		t.Errorf("Expected [001 002], got %v", versions)
	}

	broken := fstest.MapFS{
		"migrations/003_broken.sql": {Data: []byte("CREATE TABLE oops (")},
	}
	if err := NewMigrationManagerFS(db, broken).ApplyMigrations(); err == nil {
		t.Error("Expected error from a broken migration")
	}
	versions, _ = mm.AppliedVersions()
	if len(versions) != 2 {
		t.Errorf("Broken migration must not be recorded, got %v", versions)
	}
}

func TestSchemaValidator_Migrated(t *testing.T) {
	db := migratedDB(t)
	if err := NewSchemaValidator(db).Validate(); err != nil {
		t.Errorf("Migrated schema should validate: %v", err)
	}
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	v := NewSchemaValidator(db)
	if err := v.ValidateTablesExist(); err == nil {
		t.Error("Expected error for missing tables")
	}
	if err := v.ValidateIndexes(); err == nil {
		t.Error("Expected error for missing indexes")
	}
}

func TestSchema_EventsTable(t *testing.T) {
	db := migratedDB(t)

	_, err := db.Exec(`INSERT INTO events (id, type, actor, target, room, detail, timestamp)
		VALUES ('e1', 'kicked', 'T', 'S1', 'main', '', ?)`, time.Now().UTC())
	if err != nil {
		t.Fatalf("Valid insert failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO events (id, type) VALUES ('e2', 'exploded')`); err == nil {
		t.Error("Unknown event type should violate the check constraint")
	}
	if _, err := db.Exec(`INSERT INTO events (id, type) VALUES ('e1', 'muted')`); err == nil {
		t.Error("Duplicate id should violate the primary key")
	}
}

func TestDatabase_SQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations failed: %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}
}
