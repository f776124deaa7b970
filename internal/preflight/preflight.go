// Package preflight verifies, before any ledger write, that the database's
// append-only machinery is actually installed. A ledger whose triggers are
// missing accepts UPDATEs silently, which is worse than refusing to start.
// Check failures are meant to be fatal to the process.
package preflight

import (
	"context"
	"fmt"

	"github.com/roach88/scrimshaw/internal/store"
)

// requiredTables is every table the ledgers and registries depend on.
var requiredTables = []string{
	"ledger_meta",
	"ops__events",
	"state__entities",
	"state__owners",
	"state__declarations",
}

// requiredTriggers is the append-only enforcement set. All four must exist:
// a ledger with only its UPDATE trigger still accepts DELETEs.
var requiredTriggers = []string{
	"ops_events_no_update",
	"ops_events_no_delete",
	"state_declarations_no_update",
	"state_declarations_no_delete",
}

// Report is the result of a passing database check.
type Report struct {
	InstanceID string
	Tables     []string
	Triggers   []string
}

// CheckDatabase verifies the schema guard: every required table and every
// append-only trigger present, and the ledger instance id readable. It
// returns on the first missing object with an error naming it.
func CheckDatabase(ctx context.Context, s *store.Store) (*Report, error) {
	installed, err := schemaObjects(ctx, s)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, table := range requiredTables {
		if installed["table"][table] {
			report.Tables = append(report.Tables, table)
			continue
		}
		return nil, fmt.Errorf("preflight: required table %s is missing", table)
	}
	for _, trigger := range requiredTriggers {
		if installed["trigger"][trigger] {
			report.Triggers = append(report.Triggers, trigger)
			continue
		}
		return nil, fmt.Errorf("preflight: append-only trigger %s is missing", trigger)
	}

	report.InstanceID, err = s.InstanceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("preflight: read ledger instance id: %w", err)
	}
	return report, nil
}

// schemaObjects reads sqlite_master into name sets keyed by object type.
func schemaObjects(ctx context.Context, s *store.Store) (map[string]map[string]bool, error) {
	rows, err := s.Query(ctx, `
		SELECT type, name FROM sqlite_master
		WHERE type IN ('table', 'trigger')`)
	if err != nil {
		return nil, fmt.Errorf("preflight: read sqlite_master: %w", err)
	}
	defer rows.Close()

	objects := map[string]map[string]bool{
		"table":   {},
		"trigger": {},
	}
	for rows.Next() {
		var objType, name string
		if err := rows.Scan(&objType, &name); err != nil {
			return nil, fmt.Errorf("preflight: scan sqlite_master: %w", err)
		}
		objects[objType][name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("preflight: iterate sqlite_master: %w", err)
	}
	return objects, nil
}
