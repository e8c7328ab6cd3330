// Package store is the client's local persistence layer: account
// settings, CRDT config blobs, decrypted messages and per-namespace
// retrieve cursors, all backed by a single SQLite file via
// modernc.org/sqlite (pure Go, no cgo — grounded in the same
// pure-Go-driver preference the rest of the module follows).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/montana2ab/swarmclient/pkg/broadcast"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS configs (
	variant TEXT PRIMARY KEY,
	dump    BLOB NOT NULL,
	pushed  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	source             TEXT NOT NULL,
	hash               TEXT NOT NULL,
	namespace          INTEGER NOT NULL,
	sender             TEXT NOT NULL,
	receiver           TEXT NOT NULL,
	created            INTEGER NOT NULL,
	expiration         INTEGER NOT NULL DEFAULT 0,
	quoting_timestamp  INTEGER,
	job_state          TEXT NOT NULL DEFAULT 'none',
	payload            BLOB NOT NULL,
	UNIQUE(source, hash)
);
CREATE INDEX IF NOT EXISTS idx_messages_namespace_created ON messages(namespace, created);

CREATE TABLE IF NOT EXISTS message_retrieve_state (
	namespace TEXT PRIMARY KEY,
	last_hash TEXT NOT NULL DEFAULT '',
	last_created INTEGER NOT NULL DEFAULT 0
);
`

// Store wraps a SQLite-backed *sql.DB with the queries the rest of
// the client needs, and a per-table change notification
// channel so namespace workers and config sync don't have to poll.
type Store struct {
	db      *sql.DB
	changes *broadcast.Channel[string]
}

// Open opens (creating if absent) the SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db, changes: broadcast.New[string](16)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Changes returns a receiver of table names whenever a write commits
// against that table.
func (s *Store) Changes() *broadcast.Receiver[string] {
	return s.changes.Subscribe()
}

func (s *Store) notify(table string) {
	s.changes.Send(table)
}

// SetSetting upserts one opaque app_settings key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_settings(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	s.notify("app_settings")
	return nil
}

// GetSetting returns a previously-set value, or ok=false if absent.
func (s *Store) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, true, nil
}
