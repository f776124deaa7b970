// Package stateledger is the single authorized write path into the
// explicit recognition ledger (state__declarations) and the ownership
// registry that gates it.
//
// Declarations are statements a human explicitly made about a recognized
// entity. The boundary refuses anything the current owner did not declare:
// no auto-generation from other ledgers, no default acknowledgment, no
// carry-forward, no proxy recognition. Ownership reassignment closes the
// prior assignment; it never edits the owner in place.
//
// No other package may INSERT into state__declarations.
package stateledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/scrimshaw/internal/refs"
	"github.com/roach88/scrimshaw/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// Entity is one row of the recognition registry. Label and cadence are
// fixed at registration.
type Entity struct {
	Ref         string
	Label       string
	CadenceDays int
	CreatedAt   string
}

// Ledger is the recognition ledger boundary plus its ownership registry.
type Ledger struct {
	store *store.Store
	clock func() time.Time
}

// Options configures a Ledger.
type Options struct {
	// Clock supplies write timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// New creates the boundary over an opened store.
func New(s *store.Store, opts Options) *Ledger {
	l := &Ledger{store: s, clock: opts.Clock}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l
}

// RegisterEntity inserts an entity into the registry. Returns false when
// the ref is already taken; idempotent callers treat that as a no-op.
// Cadence is the expected number of days between declarations.
func (l *Ledger) RegisterEntity(ctx context.Context, entityRef, label string, cadenceDays int) (bool, error) {
	if err := refs.ValidateEntityRef(entityRef); err != nil {
		return false, err
	}
	if cadenceDays < 1 {
		return false, &ShapeError{Field: "cadence_days", Reason: fmt.Sprintf("must be >= 1, got %d", cadenceDays)}
	}

	createdAt := l.clock().UTC().Format(timeLayout)
	_, err := l.store.DB().ExecContext(ctx, `
		INSERT INTO state__entities (entity_ref, entity_label, cadence_days, created_at)
		VALUES (?, ?, ?, ?)
	`, entityRef, nullable(label), cadenceDays, createdAt)
	if err != nil {
		if store.IsConstraintViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("register entity %s: %w", entityRef, err)
	}
	return true, nil
}

// Entities lists the registry, most recently registered first.
func (l *Ledger) Entities(ctx context.Context) ([]Entity, error) {
	rows, err := l.store.Query(ctx, `
		SELECT entity_ref, entity_label, cadence_days, created_at
		FROM state__entities
		ORDER BY created_at DESC, entity_ref ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var label *string
		if err := rows.Scan(&e.Ref, &label, &e.CadenceDays, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if label != nil {
			e.Label = *label
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	if entities == nil {
		entities = []Entity{}
	}
	return entities, nil
}

// AssignOwner makes ownerActorRef the single active owner of entityRef.
// In one transaction: any currently active assignment is closed (its
// unassigned_at set), then the new assignment is inserted. Returns the new
// assignment id.
func (l *Ledger) AssignOwner(ctx context.Context, entityRef, ownerActorRef, assignedByActorRef string) (int64, error) {
	if err := refs.ValidateEntityRef(entityRef); err != nil {
		return 0, err
	}
	if err := refs.ValidateActorRef(ownerActorRef); err != nil {
		return 0, err
	}
	if err := refs.ValidateActorRef(assignedByActorRef); err != nil {
		return 0, err
	}

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign owner: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := l.clock().UTC().Format(timeLayout)

	_, err = tx.ExecContext(ctx, `
		UPDATE state__owners
		SET unassigned_at = ?
		WHERE entity_ref = ? AND unassigned_at IS NULL
	`, now, entityRef)
	if err != nil {
		return 0, fmt.Errorf("assign owner: close active assignment: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO state__owners
		(entity_ref, owner_actor_ref, assigned_at, assigned_by_actor_ref)
		VALUES (?, ?, ?, ?)
	`, entityRef, ownerActorRef, now, assignedByActorRef)
	if err != nil {
		if store.IsConstraintViolation(err) {
			return 0, &UnknownEntityError{EntityRef: entityRef}
		}
		return 0, fmt.Errorf("assign owner: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("assign owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("assign owner: commit: %w", err)
	}
	return id, nil
}

// CurrentOwner returns the actor currently owning entityRef. The second
// return is false when the entity is unowned. This is the sole authority
// the declaration write path consults.
func (l *Ledger) CurrentOwner(ctx context.Context, entityRef string) (string, bool, error) {
	var owner string
	err := l.store.DB().QueryRowContext(ctx, `
		SELECT owner_actor_ref
		FROM state__owners
		WHERE entity_ref = ? AND unassigned_at IS NULL
	`, entityRef).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("current owner of %s: %w", entityRef, err)
	}
	return owner, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
