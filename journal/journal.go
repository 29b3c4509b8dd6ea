// Package journal keeps a SQLite log of every evaluation a session runs, so
// past inputs and their outcomes survive the process.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheBB/Paltry/jit"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Journal stores jit.Entry records. It implements jit.Recorder.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		unit   TEXT NOT NULL,
		source TEXT NOT NULL,
		result TEXT NOT NULL,
		error  TEXT NOT NULL,
		at     INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record appends e.
func (j *Journal) Record(e jit.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}

	_, err := j.db.Exec(
		"INSERT INTO entries (unit, source, result, error, at) VALUES (?, ?, ?, ?, ?)",
		e.Unit, e.Source, e.Result, e.Err, e.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}
	return nil
}

// Recent returns up to n of the latest entries, oldest first.
func (j *Journal) Recent(n int) ([]jit.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`SELECT unit, source, result, error, at FROM (
		SELECT id, unit, source, result, error, at FROM entries ORDER BY id DESC LIMIT ?
	) ORDER BY id`, n)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []jit.Entry
	for rows.Next() {
		var e jit.Entry
		var at int64
		if err := rows.Scan(&e.Unit, &e.Source, &e.Result, &e.Err, &at); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (j *Journal) Count() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}
