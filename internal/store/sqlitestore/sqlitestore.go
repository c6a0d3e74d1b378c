// Package sqlitestore is a SQLite-backed routecraft.Backend, following
// the namespaced key-value schema and upsert-on-conflict pattern of an
// operational state store, generalized from a namespace+key compound
// key to the single opaque key a Backend already uses, and from a
// string-only value to the gob-encoded value a Store's Get/Set accepts.
package sqlitestore

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed implementation of routecraft.Backend.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite-backed store at dbPath, creating its
// schema if necessary.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS routecraft_store (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`)
	return err
}

// Get returns the gob-decoded value stored under key. ok is false if
// the key is absent; a decode failure is reported as an error rather
// than silently treated as absent, since a corrupt row is not the same
// condition as a missing one.
func (s *Store) Get(key string) (any, bool, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT value FROM routecraft_store WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}

	var value any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&value); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, true, nil
}

// Set gob-encodes value and upserts it under key.
func (s *Store) Set(key string, value any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO routecraft_store (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		key, buf.Bytes(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. No error is returned if the key is absent.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM routecraft_store WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
