package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/skylift-dev/skylift/pkg/domain/deployment"
	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// SQLiteDeploymentStore implements deployment.Store using SQLite.
//
// Appends run inside a single transaction, so readers observe either the
// old complete history or the new complete history and never a half-written
// record. The busy_timeout pragma serializes concurrent CLI invocations
// against the same history file.
type SQLiteDeploymentStore struct {
	db *sql.DB
}

var _ deployment.Store = (*SQLiteDeploymentStore)(nil)

// NewSQLiteDeploymentStore opens (or creates) the history database at the
// given path.
func NewSQLiteDeploymentStore(dbPath string) (*SQLiteDeploymentStore, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	return &SQLiteDeploymentStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDeploymentStore) Close() error {
	return s.db.Close()
}

// Append implements deployment.Store. The record's ID is assigned from the
// AUTOINCREMENT sequence inside the same transaction that writes its
// function states, so a failed append leaves no trace in the history.
func (s *SQLiteDeploymentStore) Append(record *deployment.Record) error {
	if record == nil {
		return fmt.Errorf("cannot append nil record")
	}
	if !record.ID.IsZero() {
		return fmt.Errorf("record %s was already appended", record.ID)
	}
	if !record.Outcome.Valid() {
		return fmt.Errorf("cannot append record with outcome %q", record.Outcome)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rollbackOf sql.NullInt64
	if !record.RollbackOf.IsZero() {
		rollbackOf.Valid = true
		rollbackOf.Int64 = int64(record.RollbackOf)
	}

	res, err := tx.Exec(`
		INSERT INTO deployments (token, project, provider, kind, rollback_of, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Token.String(),
		record.Project,
		record.Provider.String(),
		string(record.Kind),
		rollbackOf,
		string(record.Outcome),
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append deployment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read assigned deployment id: %w", err)
	}

	for i, fs := range record.Functions {
		_, err := tx.Exec(`
			INSERT INTO function_states (deployment_id, position, name, artifact_ref, status, error)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, fs.Name, fs.ArtifactRef, string(fs.Status), fs.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to append function state for %q: %w", fs.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deployment record: %w", err)
	}

	record.ID = types.DeploymentID(id)
	return nil
}

// Get implements deployment.Store.
func (s *SQLiteDeploymentStore) Get(id types.DeploymentID) (*deployment.Record, error) {
	return s.queryOne(`
		SELECT id, token, project, provider, kind, rollback_of, outcome, created_at
		FROM deployments WHERE id = ?`, int64(id))
}

// Latest implements deployment.Store.
func (s *SQLiteDeploymentStore) Latest() (*deployment.Record, error) {
	return s.queryOne(`
		SELECT id, token, project, provider, kind, rollback_of, outcome, created_at
		FROM deployments ORDER BY id DESC LIMIT 1`)
}

// LatestBefore implements deployment.Store.
func (s *SQLiteDeploymentStore) LatestBefore(id types.DeploymentID) (*deployment.Record, error) {
	return s.queryOne(`
		SELECT id, token, project, provider, kind, rollback_of, outcome, created_at
		FROM deployments WHERE id < ? ORDER BY id DESC LIMIT 1`, int64(id))
}

// List implements deployment.Store, returning records oldest first.
func (s *SQLiteDeploymentStore) List() ([]*deployment.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, token, project, provider, kind, rollback_of, outcome, created_at
		FROM deployments ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*deployment.Record, 0)
	var lastID types.DeploymentID
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if record.ID <= lastID {
			return nil, &deployment.CorruptionError{ID: record.ID, Detail: "ids are not strictly increasing"}
		}
		lastID = record.ID
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	for _, record := range records {
		if err := s.loadFunctionStates(record); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *SQLiteDeploymentStore) queryOne(query string, args ...interface{}) (*deployment.Record, error) {
	row := s.db.QueryRow(query, args...)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, deployment.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadFunctionStates(record); err != nil {
		return nil, err
	}
	return record, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*deployment.Record, error) {
	var record deployment.Record
	var id int64
	var token, provider, kind, outcome string
	var rollbackOf sql.NullInt64

	err := row.Scan(&id, &token, &record.Project, &provider, &kind, &rollbackOf, &outcome, &record.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan deployment: %w", err)
	}

	record.ID = types.DeploymentID(id)
	record.Token = types.RunToken(token)
	record.Provider = types.Provider(provider)
	record.Kind = deployment.Kind(kind)
	record.Outcome = deployment.Outcome(outcome)
	if rollbackOf.Valid {
		record.RollbackOf = types.DeploymentID(rollbackOf.Int64)
	}

	if !record.Outcome.Valid() {
		return nil, &deployment.CorruptionError{ID: record.ID, Detail: fmt.Sprintf("unknown outcome %q", outcome)}
	}

	return &record, nil
}

// loadFunctionStates loads the per-function results for a record and checks
// the ordering invariant: positions must be contiguous from zero. A gap
// means a partially written record became visible, which the atomic append
// discipline forbids.
func (s *SQLiteDeploymentStore) loadFunctionStates(record *deployment.Record) error {
	rows, err := s.db.Query(`
		SELECT position, name, artifact_ref, status, error
		FROM function_states WHERE deployment_id = ? ORDER BY position ASC`,
		int64(record.ID))
	if err != nil {
		return fmt.Errorf("failed to query function states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := make([]deployment.FunctionState, 0, 8)
	next := 0
	for rows.Next() {
		var position int
		var fs deployment.FunctionState
		var status string
		if err := rows.Scan(&position, &fs.Name, &fs.ArtifactRef, &status, &fs.Error); err != nil {
			return fmt.Errorf("failed to scan function state: %w", err)
		}
		if position != next {
			return &deployment.CorruptionError{ID: record.ID, Detail: fmt.Sprintf("function state positions have a gap at %d", next)}
		}
		next++
		fs.Status = deployment.FunctionStatus(status)
		states = append(states, fs)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating function states: %w", err)
	}

	record.Functions = states
	return nil
}
