// Package store provides SQLite-backed durable storage for the two
// scrimshaw ledgers.
//
// The store holds four logical tables:
//   - ops__events: operational exhaust ledger (append-only)
//   - state__declarations: explicit recognition ledger (append-only)
//   - state__owners: ownership history (rows are closed, never edited)
//   - state__entities: registry of recognized entities
//
// # Critical Patterns
//
// Append-only enforcement lives in the storage layer, not the application:
// BEFORE UPDATE and BEFORE DELETE triggers on both ledger tables abort any
// mutation of committed history. A blocked mutation surfaces as a
// distinguishable append-only violation (IsAppendOnlyViolation), distinct
// from ordinary validation errors, and leaves the row unchanged.
//
// Within a single ledger, insertion order is the sole ordering authority:
// ids are monotonic with respect to commit order, and every read includes
// an ORDER BY over created_at/declared_at with an id tiebreaker so results
// are deterministic under identical timestamps.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: declarations must reference registered entities
//
// Each database is stamped once at creation with a ledger instance id
// (uuid) in ledger_meta; preflight reports it so operators can tell
// isolated test stores apart from the production store.
package store
