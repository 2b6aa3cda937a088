package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 1

// InitializeDatabase creates the SQLite schema for deployment history.
// This includes migration version tracking to support future schema updates.
func InitializeDatabase(db *sql.DB) error {
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	if currentVersion < 1 {
		if err := applyMigration1(db); err != nil {
			return fmt.Errorf("failed to apply migration 1: %w", err)
		}
	}

	return nil
}

// applyMigration1 creates the initial deployment history schema.
//
// The deployments table uses AUTOINCREMENT so ids are strictly increasing
// in creation order and never reused, which is what makes them usable as
// rollback targets.
func applyMigration1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deploymentsTable := `
	CREATE TABLE deployments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		project TEXT NOT NULL,
		provider TEXT NOT NULL,
		kind TEXT NOT NULL,
		rollback_of INTEGER,
		outcome TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := tx.Exec(deploymentsTable); err != nil {
		return fmt.Errorf("failed to create deployments table: %w", err)
	}

	deploymentsIndexes := []string{
		"CREATE INDEX idx_deployments_project ON deployments(project, id);",
		"CREATE INDEX idx_deployments_outcome ON deployments(outcome, id);",
	}

	for _, idx := range deploymentsIndexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create deployment index: %w", err)
		}
	}

	// Per-function results, kept in declaration order via position.
	functionStatesTable := `
	CREATE TABLE function_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deployment_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		artifact_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		UNIQUE(deployment_id, position),
		FOREIGN KEY (deployment_id) REFERENCES deployments(id) ON DELETE CASCADE
	);`

	if _, err := tx.Exec(functionStatesTable); err != nil {
		return fmt.Errorf("failed to create function_states table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX idx_function_states_deployment ON function_states(deployment_id, position);"); err != nil {
		return fmt.Errorf("failed to create function state index: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
