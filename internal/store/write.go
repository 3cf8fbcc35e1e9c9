package store

import (
	"context"
	"fmt"

	"github.com/roach88/parallel/internal/patch"
)

var _ patch.Sink = (*Store)(nil)

// BeginSession records a new session.
// Uses ON CONFLICT(id) DO NOTHING - beginning a session twice is a no-op.
func (s *Store) BeginSession(ctx context.Context, id, label string) error {
	if id == "" {
		return fmt.Errorf("begin session: empty session id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, label)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// WritePatch inserts one patch. Implements patch.Sink.
// Uses ON CONFLICT(session, seq) DO NOTHING for idempotency - duplicate
// patches are silently ignored. Other constraint violations (unknown op,
// session never begun) still return errors.
func (s *Store) WritePatch(ctx context.Context, p patch.Patch) error {
	if !p.Op.Valid() {
		return fmt.Errorf("write patch: invalid op %q", p.Op)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patches
		(session, seq, tick, identity, op, key, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		p.Session,
		p.Seq,
		p.Tick,
		p.Identity,
		string(p.Op),
		p.Key,
		p.Value,
	)
	if err != nil {
		return fmt.Errorf("write patch: %w", err)
	}

	return nil
}
