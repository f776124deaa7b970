package crossledger

import (
	"context"
	"encoding/json"
	"fmt"
)

// PromiseConvention names a recognition scope whose declarations carry a
// deadline, and the operational event type that settles the promise. The
// ledgers themselves know nothing about promises; the convention lives
// entirely in the query.
type PromiseConvention struct {
	// ScopeRef is the recognition scope carrying the promise, for example
	// org:acme/scope:promise:response_by.
	ScopeRef string

	// ConfirmingEventType is the operational event type whose presence for
	// the same subject settles the promise, for example response_received.
	ConfirmingEventType string
}

// OpenPromise is a declared deadline with no confirming operational event.
type OpenPromise struct {
	EntityRef  string
	Deadline   string
	DeclaredBy string
	DeclaredAt string
}

// parseDeadline extracts the "deadline" field from a promise declaration's
// state text.
func parseDeadline(entityRef, stateText string) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(stateText), &payload); err != nil {
		return "", &PayloadError{EntityRef: entityRef, Reason: "state text is not valid JSON"}
	}
	raw, ok := payload["deadline"]
	if !ok {
		return "", &PayloadError{EntityRef: entityRef, Reason: `state text has no "deadline" field`}
	}
	deadline, ok := raw.(string)
	if !ok {
		return "", &PayloadError{EntityRef: entityRef, Reason: `"deadline" field is not a string`}
	}
	return deadline, nil
}

// OpenPromises returns every entity with a declaration in the convention's
// scope but no operational event of the confirming type. Only the latest
// declaration per entity is consulted; a reclassification with a new
// deadline supersedes the old one. Results are ordered oldest declaration
// first so the longest-outstanding promise surfaces at the top.
//
// A promise declaration whose state text is not JSON, or is JSON without a
// string "deadline" field, fails the whole query with a PayloadError.
func (q *Queries) OpenPromises(ctx context.Context, conv PromiseConvention) ([]OpenPromise, error) {
	if conv.ScopeRef == "" || conv.ConfirmingEventType == "" {
		return nil, fmt.Errorf("promise convention requires both scope_ref and confirming event type")
	}

	rows, err := q.store.Query(ctx, `
		SELECT d.entity_ref, d.state_text, d.declared_by_actor_ref, d.declared_at
		FROM state__declarations d
		JOIN (
			SELECT entity_ref, MAX(declaration_id) AS latest_id
			FROM state__declarations
			WHERE scope_ref = ?
			GROUP BY entity_ref
		) latest ON d.declaration_id = latest.latest_id
		WHERE NOT EXISTS (
			SELECT 1 FROM ops__events e
			WHERE e.subject_ref = d.entity_ref
			  AND e.event_type = ?
		)
		ORDER BY d.declared_at ASC, d.declaration_id ASC`,
		conv.ScopeRef, conv.ConfirmingEventType)
	if err != nil {
		return nil, fmt.Errorf("query open promises: %w", err)
	}
	defer rows.Close()

	promises := []OpenPromise{}
	for rows.Next() {
		var p OpenPromise
		var stateText string
		if err := rows.Scan(&p.EntityRef, &stateText, &p.DeclaredBy, &p.DeclaredAt); err != nil {
			return nil, fmt.Errorf("scan open promise: %w", err)
		}

		deadline, err := parseDeadline(p.EntityRef, stateText)
		if err != nil {
			return nil, err
		}
		p.Deadline = deadline
		promises = append(promises, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open promises: %w", err)
	}
	return promises, nil
}
