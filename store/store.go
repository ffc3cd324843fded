// Package store caches encoded artifacts in a SQLite database so a process
// can skip compilation for expressions it has already built.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/symbridge/artifact"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested key is not cached.
var ErrNotFound = errors.New("store: artifact not found")

// Entry describes one cached artifact without decoding its payload.
type Entry struct {
	Key     string
	Kind    uint8
	ISA     string
	Size    int64
	Created time.Time
}

// Store is an artifact cache backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache at path. The path ":memory:" gives a
// private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		isa TEXT NOT NULL,
		created INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// DefaultPath returns the cache location used when none is configured:
// $SYMJIT_CACHE, or symjit/artifacts.db under the user cache directory.
func DefaultPath() (string, error) {
	if p := os.Getenv("SYMJIT_CACHE"); p != "" {
		return p, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("getting cache dir: %w", err)
	}
	return filepath.Join(dir, "symjit", "artifacts.db"), nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put encodes a and stores it under key, replacing any previous entry.
func (s *Store) Put(key string, a *artifact.Artifact) error {
	var buf bytes.Buffer
	if err := artifact.Encode(&buf, a); err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO artifacts (key, kind, isa, created, data) VALUES (?, ?, ?, ?, ?)",
		key, a.Header.Kind, a.Header.ISA, time.Now().Unix(), buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("saving artifact: %w", err)
	}
	return nil
}

// Get decodes the artifact stored under key. The checksum is verified, so a
// damaged row fails with artifact.ErrCorrupt.
func (s *Store) Get(key string) (*artifact.Artifact, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM artifacts WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	a, err := artifact.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %w", key, err)
	}
	return a, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM artifacts WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}

// Keys returns the cached keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM artifacts ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Entries lists the cache contents, optionally restricted to one ISA.
func (s *Store) Entries(isa string) ([]Entry, error) {
	q := "SELECT key, kind, isa, length(data), created FROM artifacts"
	var args []any
	if isa != "" {
		q += " WHERE isa = ?"
		args = append(args, isa)
	}
	rows, err := s.db.Query(q+" ORDER BY key", args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Kind, &e.ISA, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries created before cutoff and returns how many went.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM artifacts WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning artifacts: %w", err)
	}
	return res.RowsAffected()
}
