// scrimshaw:ledger-sql-allowed (tests dismantle and spell out ledger SQL on purpose)
package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scrimshaw/internal/store"
	"github.com/roach88/scrimshaw/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenTestStore(t, "preflight_test.db")
}

func TestCheckDatabasePasses(t *testing.T) {
	s := newTestStore(t)

	report, err := CheckDatabase(context.Background(), s)
	require.NoError(t, err)

	assert.Len(t, report.Tables, len(requiredTables))
	assert.Len(t, report.Triggers, len(requiredTriggers))
	assert.NotEmpty(t, report.InstanceID)
}

func TestCheckDatabaseMissingTrigger(t *testing.T) {
	s := newTestStore(t)

	_, err := s.DB().Exec(`DROP TRIGGER ops_events_no_update`)
	require.NoError(t, err)

	_, err = CheckDatabase(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ops_events_no_update")
}

func TestCheckDatabaseMissingTable(t *testing.T) {
	s := newTestStore(t)

	// Dropping the table takes its triggers with it; the table check fires
	// first and names the table.
	_, err := s.DB().Exec(`DROP TABLE ops__events`)
	require.NoError(t, err)

	_, err = CheckDatabase(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required table ops__events is missing")
}

func TestCheckDatabaseEachTriggerRequired(t *testing.T) {
	for _, trigger := range requiredTriggers {
		t.Run(trigger, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.DB().Exec(`DROP TRIGGER ` + trigger)
			require.NoError(t, err)

			_, err = CheckDatabase(context.Background(), s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), trigger)
		})
	}
}
