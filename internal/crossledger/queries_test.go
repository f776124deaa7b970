package crossledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/scrimshaw/internal/opsledger"
	"github.com/roach88/scrimshaw/internal/stateledger"
	"github.com/roach88/scrimshaw/internal/store"
	"github.com/roach88/scrimshaw/internal/testutil"
)

const (
	entityQuote  = "org:acme/entity:quote:1"
	entityOrder  = "org:acme/entity:order:9"
	actorJane    = "org:acme/actor:jane"
	actorAdmin   = "org:acme/actor:admin"
	scopePromise = "org:acme/scope:promise:response_by"
)

type fixture struct {
	store   *store.Store
	ops     *opsledger.Ledger
	state   *stateledger.Ledger
	queries *Queries
	clock   *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.OpenTestStore(t, "crossledger_test.db")
	clock := testutil.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		store:   s,
		ops:     opsledger.New(s, opsledger.Options{Clock: clock.Now}),
		state:   stateledger.New(s, stateledger.Options{Clock: clock.Now}),
		queries: New(s, nil, clock.Now),
		clock:   clock,
	}
}

func (f *fixture) registerAndOwn(t *testing.T, entityRef string) {
	t.Helper()
	created, err := f.state.RegisterEntity(context.Background(), entityRef, "", 7)
	require.NoError(t, err)
	require.True(t, created)
	_, err = f.state.AssignOwner(context.Background(), entityRef, actorJane, actorAdmin)
	require.NoError(t, err)
}

func (f *fixture) declare(t *testing.T, entityRef, scopeRef, kind, text string) {
	t.Helper()
	_, err := f.state.EmitDeclaration(context.Background(), stateledger.DeclarationInput{
		EntityRef: entityRef,
		ScopeRef:  scopeRef,
		StateText: text,
		ActorRef:  actorJane,
		Kind:      kind,
	})
	require.NoError(t, err)
}

func (f *fixture) emit(t *testing.T, eventType, subjectRef string, data map[string]any) {
	t.Helper()
	_, err := f.ops.Emit(context.Background(), eventType, subjectRef, data)
	require.NoError(t, err)
}
