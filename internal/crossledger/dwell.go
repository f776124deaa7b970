package crossledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	eventStageStarted   = "stage_started"
	eventStageCompleted = "stage_completed"
)

// Dwell is one stage occupancy for one subject, measured against the
// expectation table. An open dwell has no completion event yet; its elapsed
// time runs up to the query clock.
type Dwell struct {
	SubjectRef  string
	Stage       string
	StartedAt   string
	CompletedAt string
	Open        bool
	Elapsed     time.Duration
	Expected    time.Duration
	// Delta is Elapsed minus Expected; positive means the stage ran long.
	Delta time.Duration
}

// parseStage extracts the "stage" field from a stage event's data payload.
func parseStage(subjectRef string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &PayloadError{EntityRef: subjectRef, Reason: "stage event has no event data"}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", &PayloadError{EntityRef: subjectRef, Reason: "event data is not valid JSON"}
	}
	raw, ok := payload["stage"]
	if !ok {
		return "", &PayloadError{EntityRef: subjectRef, Reason: `event data has no "stage" field`}
	}
	stage, ok := raw.(string)
	if !ok {
		return "", &PayloadError{EntityRef: subjectRef, Reason: `"stage" field is not a string`}
	}
	return stage, nil
}

// DwellVsExpectation pairs stage_started events with the next
// stage_completed for the same subject and stage, in insertion order, and
// measures each dwell against the expectation table. A start with no
// matching completion is reported as an open dwell measured to the query
// clock. Pass an empty subjectRef to cover every subject.
//
// A stage event without a string "stage" field in its data fails the whole
// query with a PayloadError, and a stage absent from the expectation table
// fails it too: both mean the operational exhaust and the expectation table
// have drifted apart, which is the very condition this query exists to
// surface.
func (q *Queries) DwellVsExpectation(ctx context.Context, subjectRef string) ([]Dwell, error) {
	query := `
		SELECT subject_ref, event_type, event_data, created_at
		FROM ops__events
		WHERE event_type IN (?, ?)`
	args := []any{eventStageStarted, eventStageCompleted}
	if subjectRef != "" {
		query += ` AND subject_ref = ?`
		args = append(args, subjectRef)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage events: %w", err)
	}
	defer rows.Close()

	type pairKey struct {
		subject string
		stage   string
	}
	dwells := []Dwell{}
	open := map[pairKey][]int{} // indexes into dwells awaiting completion

	for rows.Next() {
		var subject, eventType, createdAt string
		var data []byte
		if err := rows.Scan(&subject, &eventType, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}

		stage, err := parseStage(subject, data)
		if err != nil {
			return nil, err
		}
		expected, err := q.expectations.Expected(stage)
		if err != nil {
			return nil, err
		}

		key := pairKey{subject: subject, stage: stage}
		switch eventType {
		case eventStageStarted:
			dwells = append(dwells, Dwell{
				SubjectRef: subject,
				Stage:      stage,
				StartedAt:  createdAt,
				Open:       true,
				Expected:   expected,
			})
			open[key] = append(open[key], len(dwells)-1)
		case eventStageCompleted:
			pending := open[key]
			if len(pending) == 0 {
				// Completion with no recorded start; nothing to measure.
				continue
			}
			idx := pending[0]
			open[key] = pending[1:]
			dwells[idx].CompletedAt = createdAt
			dwells[idx].Open = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage events: %w", err)
	}

	now := q.clock().UTC()
	for i := range dwells {
		started, err := time.Parse(timeLayout, dwells[i].StartedAt)
		if err != nil {
			return nil, fmt.Errorf("parse start time %q: %w", dwells[i].StartedAt, err)
		}
		var end time.Time
		if dwells[i].Open {
			end = now
		} else {
			end, err = time.Parse(timeLayout, dwells[i].CompletedAt)
			if err != nil {
				return nil, fmt.Errorf("parse completion time %q: %w", dwells[i].CompletedAt, err)
			}
		}
		dwells[i].Elapsed = end.Sub(started)
		dwells[i].Delta = dwells[i].Elapsed - dwells[i].Expected
	}
	return dwells, nil
}
