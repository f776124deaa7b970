// Package opsledger is the single authorized write path into the
// operational exhaust ledger (ops__events).
//
// Events record what happened, in descriptive vocabulary only. Subject
// references are loose strings with no foreign key to the entity registry:
// operational exhaust may reference subjects that are never formally
// recognized. Provenance (service id + version) is deterministic per
// deployment, never derived from call-stack inspection.
//
// No other package may INSERT into ops__events.
package opsledger

// scrimshaw:ledger-sql-allowed (this package IS the authorized ops__events write path)

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/roach88/scrimshaw/internal/store"
)

// DefaultServiceID identifies this deployment in event provenance.
const DefaultServiceID = "scrimshaw_ops_v1"

// timeLayout matches SQLite's CURRENT_TIMESTAMP format so julianday()
// arithmetic works uniformly over clock-written and default timestamps.
const timeLayout = "2006-01-02 15:04:05"

// resolveBuildVersion reads the VCS revision embedded by the Go toolchain.
// Resolved once per process; "unknown" when the binary carries no build info.
var resolveBuildVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			rev := setting.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
			return rev
		}
	}
	return "unknown"
})

// Event is one immutable operational record.
type Event struct {
	ID         int64
	Type       string
	SubjectRef string
	Data       map[string]any // nil when the event carried no payload
	CreatedAt  string
	ServiceID  string
	Version    string
}

// Options configures a Ledger. The zero value is production behavior.
type Options struct {
	// ServiceID overrides DefaultServiceID in provenance.
	ServiceID string
	// Version overrides the build-info revision in provenance.
	Version string
	// DebugTag, when set, is recorded under event_data.debug.callsite for
	// events that carry no debug annotation of their own. It replaces the
	// stack inspection the boundary must not do.
	DebugTag string
	// Clock supplies write timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Ledger is the operational ledger boundary.
type Ledger struct {
	store     *store.Store
	serviceID string
	version   string
	debugTag  string
	clock     func() time.Time
}

// New creates the boundary over an opened store.
func New(s *store.Store, opts Options) *Ledger {
	l := &Ledger{
		store:     s,
		serviceID: opts.ServiceID,
		version:   opts.Version,
		debugTag:  opts.DebugTag,
		clock:     opts.Clock,
	}
	if l.serviceID == "" {
		l.serviceID = DefaultServiceID
	}
	if l.version == "" {
		l.version = resolveBuildVersion()
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l
}

// Emit appends one event to the operational ledger and returns its id.
//
// The event type is checked against the evaluative-vocabulary denylist;
// that is the only business error this path produces. Storage errors
// propagate unchanged. An empty subjectRef is normalized to "unknown" -
// the one canonical string representation for unattributed exhaust.
func (l *Ledger) Emit(ctx context.Context, eventType, subjectRef string, data map[string]any) (int64, error) {
	if err := checkVocabulary(eventType); err != nil {
		return 0, err
	}

	if subjectRef == "" {
		subjectRef = "unknown"
	}

	dataJSON, err := l.marshalData(data)
	if err != nil {
		return 0, fmt.Errorf("emit %s: %w", eventType, err)
	}

	createdAt := l.clock().UTC().Format(timeLayout)

	res, err := l.store.DB().ExecContext(ctx, `
		INSERT INTO ops__events
		(event_type, subject_ref, event_data, created_at, ingested_by_service, ingested_by_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`, eventType, subjectRef, dataJSON, createdAt, l.serviceID, l.version)
	if err != nil {
		return 0, fmt.Errorf("emit %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("emit %s: %w", eventType, err)
	}
	return id, nil
}

// marshalData serializes the opaque payload, annotating a debug callsite
// tag when configured and absent. The caller's map is never mutated.
func (l *Ledger) marshalData(data map[string]any) (any, error) {
	if data == nil && l.debugTag == "" {
		return nil, nil
	}

	if _, hasDebug := data["debug"]; l.debugTag != "" && !hasDebug {
		annotated := make(map[string]any, len(data)+1)
		for k, v := range data {
			annotated[k] = v
		}
		annotated["debug"] = map[string]any{"callsite": l.debugTag}
		data = annotated
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return string(raw), nil
}

// Filter narrows a Query. Fields combine conjunctively; zero values match
// everything.
type Filter struct {
	SubjectRef string
	EventType  string
}

// Query reads events back in creation order (id as tiebreaker, so ordering
// stays deterministic under identical timestamps).
func (l *Ledger) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, subject_ref, event_data, created_at,
		       ingested_by_service, ingested_by_version
		FROM ops__events`
	var conditions []string
	var params []any

	if f.SubjectRef != "" {
		conditions = append(conditions, "subject_ref = ?")
		params = append(params, f.SubjectRef)
	}
	if f.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		params = append(params, f.EventType)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := l.store.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var dataJSON *string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SubjectRef, &dataJSON,
			&ev.CreatedAt, &ev.ServiceID, &ev.Version); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if dataJSON != nil {
			if err := json.Unmarshal([]byte(*dataJSON), &ev.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event %d data: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}
	return events, nil
}
