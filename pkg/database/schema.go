package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// SchemaValidator checks that a database carries the audit schema.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a validator for db.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check.
func (v *SchemaValidator) Validate() error {
	checks := []func() error{
		v.ValidateTablesExist,
		v.ValidateTableStructure,
		v.ValidateIndexes,
		v.ValidateConstraints,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"events", "schema_migrations"} {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies the events columns and their declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	eventColumns := map[string]string{
		"id":        "TEXT",
		"type":      "TEXT",
		"actor":     "TEXT",
		"target":    "TEXT",
		"room":      "TEXT",
		"detail":    "TEXT",
		"timestamp": "DATETIME",
	}
	if err := v.validateColumns("events", eventColumns); err != nil {
		return fmt.Errorf("events table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies the indexes used by recent-event queries.
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range []string{"idx_events_timestamp", "idx_events_type_time"} {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateConstraints verifies that unknown event types are refused.
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`INSERT INTO events (id, type) VALUES ('schema-check', 'not_a_type')`)
	if err == nil {
		_, _ = v.db.Exec(`DELETE FROM events WHERE id = 'schema-check'`)
		return fmt.Errorf("check constraint not enforced: event type validation")
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		foundType, exists := found[name]
		if !exists {
			return fmt.Errorf("column %s not found", name)
		}
		if foundType != expected[name] {
			return fmt.Errorf("column %s has type %s, expected %s", name, foundType, expected[name])
		}
	}
	return nil
}
