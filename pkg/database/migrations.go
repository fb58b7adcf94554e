package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationManager applies pending migrations and records them in schema_migrations.
type MigrationManager struct {
	db     *sql.DB
	source fs.FS
}

// NewMigrationManager uses the migrations compiled into the binary.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return NewMigrationManagerFS(db, embeddedMigrations)
}

// NewMigrationManagerFS reads *.sql files from the migrations directory of source.
func NewMigrationManagerFS(db *sql.DB, source fs.FS) *MigrationManager {
	return &MigrationManager{db: db, source: source}
}

// ApplyMigrations applies every migration not yet recorded, in version order.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.AppliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, migration := range migrations {
		if done[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// LoadMigrations reads the migration files, sorted by version. File names follow
// "<version>_<description>.sql".
func (m *MigrationManager) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(m.source, path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, err
		}

		version, rest, _ := strings.Cut(entry.Name(), "_")
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.TrimSuffix(rest, ".sql"),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// AppliedVersions lists recorded migration versions in order.
func (m *MigrationManager) AppliedVersions() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}
