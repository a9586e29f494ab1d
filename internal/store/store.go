package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaSteps upgrade a request log one user_version at a time. Step i
// takes a database from version i to i+1; append, never reorder.
var schemaSteps = []struct {
	name string
	sql  string
}{
	{
		name: "index entries by operation for golden exports",
		sql: `CREATE INDEX IF NOT EXISTS idx_logged_requests_operation
			ON logged_requests(service, operation, seq)`,
	},
}

// schemaVersion is the user_version of a fully upgraded request log.
var schemaVersion = len(schemaSteps)

// Store is a durable, append-only log of logged service requests.
type Store struct {
	db                 *sql.DB
	discriminatorField string
}

// Option configures a Store.
type Option func(*Store)

// WithDiscriminatorField sets the field naming a request's operation inside
// stored entries. Defaults to "__type".
func WithDiscriminatorField(name string) Option {
	return func(s *Store) {
		s.discriminatorField = name
	}
}

// Open opens the request log at path, creating the file when it does not
// exist and upgrading its schema when it was written by an older carp.
// A log written by a newer carp is rejected rather than downgraded.
//
// The log is written by one connection at a time. WAL journaling lets
// `carp log` read while an `invoke` appends.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to request log: %w", err)
	}

	// Appends take the next seq; a single connection keeps them serial.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := upgrade(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, discriminatorField: "__type"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the request log.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configure(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to configure request log: %q: %w", pragma, err)
		}
	}
	return nil
}

// upgrade creates the logged_requests table and applies every schema step
// past the log's user_version.
func upgrade(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read request log version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("request log schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create request log tables: %w", err)
	}
	for v := version; v < schemaVersion; v++ {
		step := schemaSteps[v]
		if _, err := db.Exec(step.sql); err != nil {
			return fmt.Errorf("request log schema %d -> %d (%s): %w", v, v+1, step.name, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to record request log version: %w", err)
	}
	return nil
}

// pragma reads a pragma's current value.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
