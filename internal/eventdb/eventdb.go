// Package eventdb persists audit events in a local SQLite database so the
// chain reconstructor can query history across process restarts.
package eventdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/govtrail/internal/audit"
)

const currentSchemaVersion = 1

// Store is an SQLite-backed audit.Sink and audit.Source.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// The path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("eventdb: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventdb: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventdb: ping %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL PRIMARY KEY);`); err != nil {
		return fmt.Errorf("eventdb: create schema_version: %w", err)
	}
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?);`, currentSchemaVersion); err != nil {
			return fmt.Errorf("eventdb: insert schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("eventdb: query schema version: %w", err)
	case version > currentSchemaVersion:
		return fmt.Errorf("eventdb: database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT NOT NULL PRIMARY KEY,
			event_type TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			ts_unix_nano INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_correlation ON events (correlation_id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts_unix_nano);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventdb: create schema: %w", err)
		}
	}
	return nil
}

// Append stores e. Appending an id that already exists is a no-op.
func (s *Store) Append(e audit.Event) error {
	payload, err := audit.Encode(e)
	if err != nil {
		return err
	}
	h := e.Meta()
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO events (id, event_type, correlation_id, ts_unix_nano, payload) VALUES (?, ?, ?, ?, ?);`,
		h.ID, string(h.Type), h.CorrelationID, h.Timestamp.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("eventdb: insert %s: %w", h.ID, err)
	}
	return nil
}

func (s *Store) ByCorrelation(correlationID string) ([]audit.Event, error) {
	return s.query(`SELECT payload FROM events WHERE correlation_id = ? ORDER BY ts_unix_nano, id;`, correlationID)
}

func (s *Store) Since(t time.Time) ([]audit.Event, error) {
	return s.query(`SELECT payload FROM events WHERE ts_unix_nano >= ? ORDER BY ts_unix_nano, id;`, t.UnixNano())
}

// Count returns the number of stored events.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventdb: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(q string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("eventdb: query: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("eventdb: scan: %w", err)
		}
		e, err := audit.Decode([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("eventdb: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventdb: rows: %w", err)
	}
	return out, nil
}
