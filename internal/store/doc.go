// Package store provides the SQLite-backed patch journal.
//
// The store is an append-only log with:
//   - Sessions: one row per engine run
//   - Patches: every external mutation applied during a session
//
// # Critical Patterns
//
// Patch-Level Idempotency
//   - PRIMARY KEY(session, seq)
//   - Writing the same patch twice is a silent no-op
//
// Logical Time
//   - All ordering uses seq and tick (logical counters), NEVER timestamps
//   - Reading a session back yields the exact application order
//
// Deterministic Query Results
//   - Session patches are read ORDER BY seq ASC
//   - Sessions are listed in insertion order
//
// # Journal Versions
//
// The layout version lives in SQLite's user_version. Open upgrades older
// journals step by step and refuses newer ones (ErrJournalTooNew).
//
//   - v1: sessions, patches, (session, tick, seq) index
//   - v2: (session, identity, seq) index for ReadIdentity
package store
