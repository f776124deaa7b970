package stateledger

// scrimshaw:ledger-sql-allowed (this package IS the authorized state__declarations write path)

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/scrimshaw/internal/refs"
)

// Declaration kinds. Exact, case-sensitive, no synonyms: a declaration
// explicitly states whether it continues the most recent classification or
// changes it.
const (
	KindReaffirmation    = "REAFFIRMATION"
	KindReclassification = "RECLASSIFICATION"
)

// Declaration is one immutable recognition record.
type Declaration struct {
	ID             int64
	EntityRef      string
	ScopeRef       string
	StateText      string
	Classification string
	Kind           string
	DeclaredBy     string
	DeclaredAt     string
	SupersedesID   int64 // 0 when not set; advisory, not a strict chain
	OpsEvidenceRef string
	EvidenceRefs   []string
}

// DeclarationInput carries the fields of one declaration write.
type DeclarationInput struct {
	EntityRef string
	ScopeRef  string
	StateText string
	ActorRef  string
	Kind      string

	// Optional.
	Classification string
	OpsEvidenceRef string
	EvidenceRefs   []string // stored inert, never dereferenced
	SupersedesID   int64    // advisory pointer to a prior declaration
}

// EmitDeclaration appends one declaration and returns its id.
//
// Validation order, first failure wins:
//  1. identifier grammar for entity, actor, and scope refs
//  2. state text non-empty after trimming
//  3. declaration kind is exactly REAFFIRMATION or RECLASSIFICATION
//  4. state text contains no line breaks (one sentence, atomic)
//  5. the entity has a currently active owner
//  6. the calling actor is that owner, exactly
//  7. evidence refs, if given, serialize as a JSON list
//
// Steps 5 and 6 refuse with distinct categories so the caller knows
// whether to assign an owner or switch actor.
func (l *Ledger) EmitDeclaration(ctx context.Context, in DeclarationInput) (int64, error) {
	if err := refs.ValidateAll(in.EntityRef, in.ActorRef, in.ScopeRef); err != nil {
		return 0, err
	}

	if strings.TrimSpace(in.StateText) == "" {
		return 0, &ShapeError{Field: "state_text", Reason: "cannot be empty or whitespace"}
	}

	if in.Kind != KindReaffirmation && in.Kind != KindReclassification {
		return 0, &ShapeError{
			Field:  "declaration_kind",
			Reason: fmt.Sprintf("must be %s or %s, got %q", KindReaffirmation, KindReclassification, in.Kind),
		}
	}

	if strings.ContainsAny(in.StateText, "\n\r") {
		return 0, &ShapeError{Field: "state_text", Reason: "must be one sentence (line breaks not allowed)"}
	}

	owner, owned, err := l.CurrentOwner(ctx, in.EntityRef)
	if err != nil {
		return 0, err
	}
	if !owned {
		return 0, &RefusalError{
			Category:  CategoryUnowned,
			EntityRef: in.EntityRef,
			ActorRef:  in.ActorRef,
		}
	}
	if owner != in.ActorRef {
		return 0, &RefusalError{
			Category:     CategoryProxy,
			EntityRef:    in.EntityRef,
			ActorRef:     in.ActorRef,
			CurrentOwner: owner,
		}
	}

	var evidenceJSON any
	if in.EvidenceRefs != nil {
		raw, err := json.Marshal(in.EvidenceRefs)
		if err != nil {
			return 0, &ShapeError{Field: "evidence_refs", Reason: fmt.Sprintf("must be JSON-serializable: %v", err)}
		}
		evidenceJSON = string(raw)
	}

	var supersedes any
	if in.SupersedesID != 0 {
		supersedes = in.SupersedesID
	}

	declaredAt := l.clock().UTC().Format(timeLayout)

	res, err := l.store.DB().ExecContext(ctx, `
		INSERT INTO state__declarations
		(entity_ref, scope_ref, state_text, classification,
		 declared_by_actor_ref, declared_at, declaration_kind,
		 supersedes_declaration_id, ops_evidence_ref, evidence_refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.EntityRef, in.ScopeRef, in.StateText, nullable(in.Classification),
		in.ActorRef, declaredAt, in.Kind,
		supersedes, nullable(in.OpsEvidenceRef), evidenceJSON)
	if err != nil {
		return 0, fmt.Errorf("emit declaration for %s: %w", in.EntityRef, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("emit declaration for %s: %w", in.EntityRef, err)
	}
	return id, nil
}

// DeclFilter narrows a Declarations read. Fields combine conjunctively;
// zero values match everything. Limit <= 0 means no limit.
type DeclFilter struct {
	EntityRef string
	ScopeRef  string
	ActorRef  string
	Limit     int
}

// Declarations reads declarations back, most recent first (id as
// tiebreaker under identical timestamps).
func (l *Ledger) Declarations(ctx context.Context, f DeclFilter) ([]Declaration, error) {
	query := `
		SELECT declaration_id, entity_ref, scope_ref, state_text,
		       classification, declaration_kind, declared_by_actor_ref,
		       declared_at, supersedes_declaration_id, ops_evidence_ref,
		       evidence_refs
		FROM state__declarations`
	var conditions []string
	var params []any

	if f.EntityRef != "" {
		conditions = append(conditions, "entity_ref = ?")
		params = append(params, f.EntityRef)
	}
	if f.ScopeRef != "" {
		conditions = append(conditions, "scope_ref = ?")
		params = append(params, f.ScopeRef)
	}
	if f.ActorRef != "" {
		conditions = append(conditions, "declared_by_actor_ref = ?")
		params = append(params, f.ActorRef)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY declared_at DESC, declaration_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, f.Limit)
	}

	rows, err := l.store.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	var declarations []Declaration
	for rows.Next() {
		var d Declaration
		var classification, opsEvidence, evidenceJSON *string
		var supersedes *int64
		if err := rows.Scan(&d.ID, &d.EntityRef, &d.ScopeRef, &d.StateText,
			&classification, &d.Kind, &d.DeclaredBy, &d.DeclaredAt,
			&supersedes, &opsEvidence, &evidenceJSON); err != nil {
			return nil, fmt.Errorf("scan declaration: %w", err)
		}
		if classification != nil {
			d.Classification = *classification
		}
		if opsEvidence != nil {
			d.OpsEvidenceRef = *opsEvidence
		}
		if supersedes != nil {
			d.SupersedesID = *supersedes
		}
		if evidenceJSON != nil {
			if err := json.Unmarshal([]byte(*evidenceJSON), &d.EvidenceRefs); err != nil {
				return nil, fmt.Errorf("unmarshal declaration %d evidence refs: %w", d.ID, err)
			}
		}
		declarations = append(declarations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate declarations: %w", err)
	}

	if declarations == nil {
		declarations = []Declaration{}
	}
	return declarations, nil
}
