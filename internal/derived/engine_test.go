package derived

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scrimshaw/internal/stateledger"
	"github.com/roach88/scrimshaw/internal/store"
	"github.com/roach88/scrimshaw/internal/testutil"
)

const (
	entityQuote    = "org:acme/entity:quote:1"
	entityCustomer = "org:acme/entity:customer:7"
	actorJane      = "org:acme/actor:jane"
	actorAdmin     = "org:acme/actor:admin"
	scopeRel       = "org:acme/scope:reliability"
	scopeSched     = "org:acme/scope:schedule"
)

type fixture struct {
	store  *store.Store
	state  *stateledger.Ledger
	engine *Engine
	clock  *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.OpenTestStore(t, "derived_test.db")
	clock := testutil.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		store:  s,
		state:  stateledger.New(s, stateledger.Options{Clock: clock.Now}),
		engine: New(s, clock.Now),
		clock:  clock,
	}
}

func (f *fixture) register(t *testing.T, entityRef string, cadenceDays int) {
	t.Helper()
	created, err := f.state.RegisterEntity(context.Background(), entityRef, "", cadenceDays)
	require.NoError(t, err)
	require.True(t, created)
}

func (f *fixture) own(t *testing.T, entityRef, actor string) {
	t.Helper()
	_, err := f.state.AssignOwner(context.Background(), entityRef, actor, actorAdmin)
	require.NoError(t, err)
}

func (f *fixture) declare(t *testing.T, entityRef, scopeRef, kind, text string) int64 {
	t.Helper()
	id, err := f.state.EmitDeclaration(context.Background(), stateledger.DeclarationInput{
		EntityRef: entityRef,
		ScopeRef:  scopeRef,
		StateText: text,
		ActorRef:  actorJane,
		Kind:      kind,
	})
	require.NoError(t, err)
	return id
}

func TestUnownedEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.register(t, entityCustomer, 7)

	unowned, err := f.engine.UnownedEntities(ctx)
	require.NoError(t, err)
	require.Len(t, unowned, 2)

	f.own(t, entityCustomer, actorJane)

	unowned, err = f.engine.UnownedEntities(ctx)
	require.NoError(t, err)
	require.Len(t, unowned, 1)
	assert.Equal(t, entityQuote, unowned[0].EntityRef)

	// Unassignment history does not resurrect ownership: reassigning
	// keeps the entity owned.
	f.own(t, entityCustomer, actorAdmin)
	unowned, err = f.engine.UnownedEntities(ctx)
	require.NoError(t, err)
	require.Len(t, unowned, 1)
}

func TestDeferredEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)
	f.register(t, entityCustomer, 7)

	// entityQuote declared now; entityCustomer never declared.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReclassification, "on track")

	deferred, err := f.engine.DeferredEntities(ctx)
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	assert.Equal(t, entityCustomer, deferred[0].EntityRef)
	assert.Empty(t, deferred[0].LastDeclaredAt)

	// Ten days of silence pushes entityQuote past its 7-day cadence.
	f.clock.Advance(10 * 24 * time.Hour)

	deferred, err = f.engine.DeferredEntities(ctx)
	require.NoError(t, err)
	require.Len(t, deferred, 2)
	assert.Equal(t, entityCustomer, deferred[0].EntityRef)
	assert.Equal(t, entityQuote, deferred[1].EntityRef)
	assert.Equal(t, 10, deferred[1].DaysSince)
	assert.NotEmpty(t, deferred[1].LastDeclaredAt)

	// A fresh declaration clears the deferral.
	f.declare(t, entityQuote, scopeSched, stateledger.KindReclassification, "rescheduled")
	deferred, err = f.engine.DeferredEntities(ctx)
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	assert.Equal(t, entityCustomer, deferred[0].EntityRef)
}

func TestContinuityRuns_Threshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)

	f.declare(t, entityQuote, scopeRel, stateledger.KindReclassification, "state one")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "state two")

	// One reaffirmation is below threshold.
	runs, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "state three")

	runs, err = f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, entityQuote, runs[0].EntityRef)
	assert.Equal(t, scopeRel, runs[0].ScopeRef)
	assert.Equal(t, 2, runs[0].Reaffirmations)
}

func TestContinuityRuns_ResetOnReclassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)

	// RECLASSIFICATION, REAFFIRMATION, REAFFIRMATION: run of 2.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReclassification, "baseline")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "holds")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "still holds")

	runs, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Reaffirmations)

	// A new RECLASSIFICATION resets the run to zero immediately.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReclassification, "changed")

	runs, err = f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// One reaffirmation after the reset still does not qualify.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "holds again")
	runs, err = f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestContinuityRuns_WithoutAnyReclassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)

	// All reaffirmations count when no reclassification ever happened.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "one")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "two")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "three")

	runs, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Reaffirmations)
}

func TestContinuityRuns_PerScopePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)

	// Runs are tracked per (entity, scope): a reclassification in one
	// scope does not reset another scope's run.
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "rel one")
	f.declare(t, entityQuote, scopeSched, stateledger.KindReaffirmation, "sched one")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "rel two")
	f.declare(t, entityQuote, scopeSched, stateledger.KindReclassification, "sched reset")
	f.declare(t, entityQuote, scopeSched, stateledger.KindReaffirmation, "sched two")

	runs, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, scopeRel, runs[0].ScopeRef)
	assert.Equal(t, 2, runs[0].Reaffirmations)
}

func TestTimeInState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.own(t, entityQuote, actorJane)

	f.declare(t, entityQuote, scopeRel, stateledger.KindReclassification, "old state")
	f.clock.Advance(3 * 24 * time.Hour)
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "current state")
	f.clock.Advance(2 * 24 * time.Hour)

	ages, err := f.engine.TimeInState(ctx)
	require.NoError(t, err)
	require.Len(t, ages, 1)
	assert.Equal(t, "current state", ages[0].StateText)
	assert.Equal(t, stateledger.KindReaffirmation, ages[0].Kind)
	assert.Equal(t, 2, ages[0].DaysSince)
}

func TestDerivedQueries_ArePure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, entityQuote, 7)
	f.register(t, entityCustomer, 7)
	f.own(t, entityQuote, actorJane)
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "one")
	f.declare(t, entityQuote, scopeRel, stateledger.KindReaffirmation, "two")

	// Two consecutive calls with no intervening writes return identical
	// results.
	unowned1, err := f.engine.UnownedEntities(ctx)
	require.NoError(t, err)
	unowned2, err := f.engine.UnownedEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, unowned1, unowned2)

	deferred1, err := f.engine.DeferredEntities(ctx)
	require.NoError(t, err)
	deferred2, err := f.engine.DeferredEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, deferred1, deferred2)

	runs1, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	runs2, err := f.engine.ContinuityRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, runs1, runs2)
}
