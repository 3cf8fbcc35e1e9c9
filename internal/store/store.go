package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalSteps upgrade a journal one version at a time: step i moves a
// database at user_version i to i+1.
var journalSteps = []func(tx *sql.Tx) error{
	// v1: sessions, patches and the per-tick read order.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(schemaSQL)
		return err
	},
	// v2: per-identity history, read by ReadIdentity.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_patches_identity ON patches(session, identity, seq)`)
		return err
	},
}

// JournalVersion is the journal layout written by this package.
var JournalVersion = len(journalSteps)

// ErrJournalTooNew is returned by Open for a journal written by a newer
// build. It is never downgraded.
var ErrJournalTooNew = errors.New("journal version is newer than supported")

// Store is the durable patch journal.
// Uses SQLite with WAL mode so a trace can be read while a run writes.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it if needed, and brings it up
// to JournalVersion. Opening an up-to-date journal changes nothing.
//
// Connection settings travel in the DSN so every pooled connection gets
// them: WAL, synchronous=NORMAL, a 5s busy timeout and foreign keys (a
// patch must belong to a begun session).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	// One writer at a time; patches arrive from a single loop goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := upgrade(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

// upgrade applies the journal steps past the stored user_version, each in
// its own transaction together with the version bump.
func upgrade(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}
	if version > JournalVersion {
		return fmt.Errorf("%w: v%d, this build writes v%d", ErrJournalTooNew, version, JournalVersion)
	}

	for v := version; v < JournalVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("upgrade journal to v%d: %w", v+1, err)
		}
		if err := journalSteps[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("upgrade journal to v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upgrade journal to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("upgrade journal to v%d: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the journal. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
