// Package derived computes read-only analytics over the two ledgers.
//
// Every query here is a continuous query over immutable history: nothing
// is materialized as a mutable flag, so two consecutive calls with no
// intervening writes return identical results. The queries make structural
// facts visible (ownerlessness, silence past cadence, unbroken
// reaffirmation runs) without scoring, ranking, or recommending anything -
// judgment stays with the humans reading them.
//
// Ordering inside a ledger follows insertion ids, not wall-clock time, so
// results are unambiguous under identical timestamps.
package derived

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/scrimshaw/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// continuityThreshold is the minimum reaffirmation run length worth
// reporting. A single reaffirmation does not establish continuity.
const continuityThreshold = 2

// Engine answers derived-state queries over an opened store.
type Engine struct {
	store *store.Store
	clock func() time.Time
}

// New creates an Engine. A nil clock defaults to time.Now.
func New(s *store.Store, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: s, clock: clock}
}

// UnownedEntity is a registered entity with no currently active owner.
type UnownedEntity struct {
	EntityRef   string
	Label       string
	CadenceDays int
	CreatedAt   string
}

// UnownedEntities returns entities with no active ownership row. This is
// an anti-join against the ownership history, not a stored boolean.
func (e *Engine) UnownedEntities(ctx context.Context) ([]UnownedEntity, error) {
	rows, err := e.store.Query(ctx, `
		SELECT e.entity_ref, e.entity_label, e.cadence_days, e.created_at
		FROM state__entities e
		WHERE NOT EXISTS (
			SELECT 1 FROM state__owners o
			WHERE o.entity_ref = e.entity_ref
			AND o.unassigned_at IS NULL
		)
		ORDER BY e.entity_ref ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unowned entities: %w", err)
	}
	defer rows.Close()

	var entities []UnownedEntity
	for rows.Next() {
		var u UnownedEntity
		var label *string
		if err := rows.Scan(&u.EntityRef, &label, &u.CadenceDays, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unowned entity: %w", err)
		}
		if label != nil {
			u.Label = *label
		}
		entities = append(entities, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unowned entities: %w", err)
	}
	if entities == nil {
		entities = []UnownedEntity{}
	}
	return entities, nil
}

// DeferredEntity is an entity past its declaration cadence, or one that
// has never been declared on at all.
type DeferredEntity struct {
	EntityRef      string
	Label          string
	CadenceDays    int
	LastDeclaredAt string // empty when no declaration exists
	DaysSince      int    // meaningful only when LastDeclaredAt is set
}

// DeferredEntities returns entities whose most recent declaration (across
// all scopes) is older than their cadence, plus entities with no
// declaration at all. Computed from a max-timestamp aggregation, not event
// counting.
func (e *Engine) DeferredEntities(ctx context.Context) ([]DeferredEntity, error) {
	now := e.clock().UTC().Format(timeLayout)
	rows, err := e.store.Query(ctx, `
		SELECT e.entity_ref, e.entity_label, e.cadence_days,
		       MAX(d.declared_at) AS last_declared_at,
		       CAST(julianday(?) - julianday(MAX(d.declared_at)) AS INTEGER) AS days_since
		FROM state__entities e
		LEFT JOIN state__declarations d ON e.entity_ref = d.entity_ref
		GROUP BY e.entity_ref, e.entity_label, e.cadence_days
		HAVING last_declared_at IS NULL
		    OR CAST(julianday(?) - julianday(last_declared_at) AS INTEGER) > e.cadence_days
		ORDER BY e.entity_ref ASC
	`, now, now)
	if err != nil {
		return nil, fmt.Errorf("query deferred entities: %w", err)
	}
	defer rows.Close()

	var entities []DeferredEntity
	for rows.Next() {
		var d DeferredEntity
		var label, lastDeclared *string
		var daysSince *int
		if err := rows.Scan(&d.EntityRef, &label, &d.CadenceDays, &lastDeclared, &daysSince); err != nil {
			return nil, fmt.Errorf("scan deferred entity: %w", err)
		}
		if label != nil {
			d.Label = *label
		}
		if lastDeclared != nil {
			d.LastDeclaredAt = *lastDeclared
		}
		if daysSince != nil {
			d.DaysSince = *daysSince
		}
		entities = append(entities, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deferred entities: %w", err)
	}
	if entities == nil {
		entities = []DeferredEntity{}
	}
	return entities, nil
}

// ContinuityRun is an unbroken run of reaffirmations for one entity/scope
// pair since its most recent reclassification.
type ContinuityRun struct {
	EntityRef       string
	ScopeRef        string
	Reaffirmations  int
	FirstReaffirmed string
	LastReaffirmed  string
}

// ContinuityRuns reports entity/scope pairs with at least two
// reaffirmations since the most recent reclassification (or ever, when no
// reclassification exists). A new reclassification resets the run to zero
// immediately. Runs are delimited by declaration id, not wall-clock time,
// so identical timestamps cannot blur the boundary.
func (e *Engine) ContinuityRuns(ctx context.Context) ([]ContinuityRun, error) {
	rows, err := e.store.Query(ctx, `
		WITH last_reclassification AS (
			SELECT entity_ref, scope_ref, MAX(declaration_id) AS last_recl_id
			FROM state__declarations
			WHERE declaration_kind = 'RECLASSIFICATION'
			GROUP BY entity_ref, scope_ref
		),
		current_run AS (
			SELECT d.entity_ref, d.scope_ref, d.declared_at
			FROM state__declarations d
			LEFT JOIN last_reclassification lr
				ON d.entity_ref = lr.entity_ref
				AND d.scope_ref = lr.scope_ref
			WHERE d.declaration_kind = 'REAFFIRMATION'
			AND (lr.last_recl_id IS NULL OR d.declaration_id > lr.last_recl_id)
		)
		SELECT entity_ref, scope_ref, COUNT(*) AS reaffirmations,
		       MIN(declared_at), MAX(declared_at)
		FROM current_run
		GROUP BY entity_ref, scope_ref
		HAVING COUNT(*) >= ?
		ORDER BY reaffirmations DESC, entity_ref ASC, scope_ref ASC
	`, continuityThreshold)
	if err != nil {
		return nil, fmt.Errorf("query continuity runs: %w", err)
	}
	defer rows.Close()

	var runs []ContinuityRun
	for rows.Next() {
		var r ContinuityRun
		if err := rows.Scan(&r.EntityRef, &r.ScopeRef, &r.Reaffirmations,
			&r.FirstReaffirmed, &r.LastReaffirmed); err != nil {
			return nil, fmt.Errorf("scan continuity run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate continuity runs: %w", err)
	}
	if runs == nil {
		runs = []ContinuityRun{}
	}
	return runs, nil
}

// StateAge is the most recent declaration for one entity/scope pair plus
// its age in days. Dashboard data: no severity, no threshold.
type StateAge struct {
	EntityRef      string
	ScopeRef       string
	StateText      string
	Classification string
	Kind           string
	DeclaredBy     string
	DeclaredAt     string
	DaysSince      int
}

// TimeInState returns, per entity/scope pair, the single most recent
// declaration (by id, the insertion-order authority) and how many days it
// has stood.
func (e *Engine) TimeInState(ctx context.Context) ([]StateAge, error) {
	now := e.clock().UTC().Format(timeLayout)
	rows, err := e.store.Query(ctx, `
		WITH latest AS (
			SELECT entity_ref, scope_ref, MAX(declaration_id) AS last_id
			FROM state__declarations
			GROUP BY entity_ref, scope_ref
		)
		SELECT d.entity_ref, d.scope_ref, d.state_text, d.classification,
		       d.declaration_kind, d.declared_by_actor_ref, d.declared_at,
		       CAST(julianday(?) - julianday(d.declared_at) AS INTEGER) AS days_since
		FROM state__declarations d
		JOIN latest l ON d.declaration_id = l.last_id
		ORDER BY d.entity_ref ASC, d.scope_ref ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query time in state: %w", err)
	}
	defer rows.Close()

	var ages []StateAge
	for rows.Next() {
		var a StateAge
		var classification *string
		if err := rows.Scan(&a.EntityRef, &a.ScopeRef, &a.StateText, &classification,
			&a.Kind, &a.DeclaredBy, &a.DeclaredAt, &a.DaysSince); err != nil {
			return nil, fmt.Errorf("scan state age: %w", err)
		}
		if classification != nil {
			a.Classification = *classification
		}
		ages = append(ages, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state ages: %w", err)
	}
	if ages == nil {
		ages = []StateAge{}
	}
	return ages, nil
}
