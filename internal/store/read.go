package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/parallel/internal/patch"
)

// Session summarizes one journaled run.
type Session struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Patches  int    `json:"patches"`
	LastTick int64  `json:"last_tick"`
}

// ReadSession returns every patch of a session in application order
// (ORDER BY seq ASC).
//
// Returns an empty slice (not nil) if the session has no patches.
func (s *Store) ReadSession(ctx context.Context, session string) ([]patch.Patch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, tick, identity, op, key, value
		FROM patches
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query patches: %w", err)
	}
	return collectPatches(rows)
}

// ReadIdentity returns the patches of one identity within a session, in
// application order. Returns an empty slice if there are none.
func (s *Store) ReadIdentity(ctx context.Context, session string, identity int) ([]patch.Patch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, tick, identity, op, key, value
		FROM patches
		WHERE session = ? AND identity = ?
		ORDER BY seq ASC
	`, session, identity)
	if err != nil {
		return nil, fmt.Errorf("query identity patches: %w", err)
	}
	return collectPatches(rows)
}

// Sessions lists every session in the order they were begun.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.label, COUNT(p.seq), COALESCE(MAX(p.tick), 0)
		FROM sessions s
		LEFT JOIN patches p ON p.session = s.id
		GROUP BY s.id
		ORDER BY s.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Label, &sess.Patches, &sess.LastTick); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// LatestSession returns the most recently begun session id.
// Returns sql.ErrNoRows (wrapped) if the journal is empty.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY rowid DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// collectPatches drains and closes rows.
func collectPatches(rows *sql.Rows) ([]patch.Patch, error) {
	defer rows.Close()

	patches := []patch.Patch{}
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patches: %w", err)
	}
	return patches, nil
}

func scanPatch(rows *sql.Rows) (patch.Patch, error) {
	var (
		p  patch.Patch
		op string
	)
	if err := rows.Scan(&p.Session, &p.Seq, &p.Tick, &p.Identity, &op, &p.Key, &p.Value); err != nil {
		return patch.Patch{}, fmt.Errorf("scan patch: %w", err)
	}
	p.Op = patch.Op(op)
	return p, nil
}
