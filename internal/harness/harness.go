// Package harness runs ledger conformance scenarios: YAML-defined sequences
// of ledger operations executed against a fresh in-memory database under a
// deterministic clock, with the derived views snapshotted at the end.
//
// Scenarios exercise the real ledger write paths, including their refusals:
// a step that expects a refusal fails the scenario if the ledger accepts the
// write. Snapshots are compared against golden files, so a change in
// refusal wording, ordering, or derived-state arithmetic shows up as a
// golden diff rather than slipping through.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/scrimshaw/internal/crossledger"
	"github.com/roach88/scrimshaw/internal/derived"
	"github.com/roach88/scrimshaw/internal/opsledger"
	"github.com/roach88/scrimshaw/internal/stateledger"
	"github.com/roach88/scrimshaw/internal/store"
	"github.com/roach88/scrimshaw/internal/testutil"
)

// scenarioStart is the fixed clock epoch every scenario begins at.
var scenarioStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Fixed provenance for scenario events, so goldens never depend on the
// build environment.
const (
	scenarioServiceID = "harness"
	scenarioVersion   = "test"
)

// StepOutcome records how one step went.
type StepOutcome struct {
	Op     string `json:"op"`
	Status string `json:"status"` // "ok" or "refused"
	Detail string `json:"detail"`
}

// Result is the outcome of a scenario run, ready for snapshotting.
type Result struct {
	Scenario string
	Steps    []StepOutcome

	Unowned     []derived.UnownedEntity
	Deferred    []derived.DeferredEntity
	Continuity  []derived.ContinuityRun
	TimeInState []derived.StateAge

	Promises []crossledger.OpenPromise
	Dwell    []crossledger.Dwell
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database for isolation, with the
// clock pinned to a fixed start so every timestamp in the result is
// reproducible.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewClock(scenarioStart)
	ops := opsledger.New(st, opsledger.Options{
		ServiceID: scenarioServiceID,
		Version:   scenarioVersion,
		Clock:     clock.Now,
	})
	state := stateledger.New(st, stateledger.Options{Clock: clock.Now})

	ctx := context.Background()
	result := &Result{Scenario: scenario.Name}

	for i, step := range scenario.Steps {
		outcome, err := executeStep(ctx, i, &step, state, ops, clock)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, outcome)
	}

	if err := snapshotViews(ctx, st, clock, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

func executeStep(ctx context.Context, i int, step *Step,
	state *stateledger.Ledger, ops *opsledger.Ledger, clock *testutil.Clock,
) (StepOutcome, error) {
	switch {
	case step.Register != nil:
		r := step.Register
		created, err := state.RegisterEntity(ctx, r.Entity, r.Label, r.Cadence)
		if err != nil {
			return StepOutcome{}, fmt.Errorf("steps[%d].register: %w", i, err)
		}
		detail := "registered " + r.Entity
		if !created {
			detail = "already registered " + r.Entity
		}
		return StepOutcome{Op: "register", Status: "ok", Detail: detail}, nil

	case step.Assign != nil:
		a := step.Assign
		if _, err := state.AssignOwner(ctx, a.Entity, a.Owner, a.By); err != nil {
			return StepOutcome{}, fmt.Errorf("steps[%d].assign: %w", i, err)
		}
		return StepOutcome{Op: "assign", Status: "ok", Detail: a.Entity + " -> " + a.Owner}, nil

	case step.Declare != nil:
		d := step.Declare
		kind := stateledger.KindReaffirmation
		if d.Reclassify {
			kind = stateledger.KindReclassification
		}
		id, err := state.EmitDeclaration(ctx, stateledger.DeclarationInput{
			EntityRef: d.Entity,
			ScopeRef:  d.Scope,
			StateText: d.Text,
			ActorRef:  d.Actor,
			Kind:      kind,
		})
		return stepResult(i, "declare", d.ExpectRefusal,
			fmt.Sprintf("declaration %d (%s)", id, kind), err)

	case step.Emit != nil:
		e := step.Emit
		id, err := ops.Emit(ctx, e.Type, e.Subject, e.Data)
		return stepResult(i, "emit", e.ExpectRefusal,
			fmt.Sprintf("event %d (%s)", id, e.Type), err)

	case step.Advance != nil:
		d := time.Duration(step.Advance.Days)*24*time.Hour +
			time.Duration(step.Advance.Hours)*time.Hour
		clock.Advance(d)
		return StepOutcome{Op: "advance", Status: "ok", Detail: d.String()}, nil
	}

	return StepOutcome{}, fmt.Errorf("steps[%d]: no operation set", i)
}

// stepResult reconciles an operation's error with the step's refusal
// expectation. An expected refusal that did not happen fails the scenario,
// as does an unexpected one.
func stepResult(i int, op, expectRefusal, okDetail string, err error) (StepOutcome, error) {
	if expectRefusal == "" {
		if err != nil {
			return StepOutcome{}, fmt.Errorf("steps[%d].%s: %w", i, op, err)
		}
		return StepOutcome{Op: op, Status: "ok", Detail: okDetail}, nil
	}

	if err == nil {
		return StepOutcome{}, fmt.Errorf(
			"steps[%d].%s: expected refusal containing %q, but the write was accepted", i, op, expectRefusal)
	}
	if !strings.Contains(err.Error(), expectRefusal) {
		return StepOutcome{}, fmt.Errorf(
			"steps[%d].%s: refusal %q does not contain %q", i, op, err.Error(), expectRefusal)
	}
	return StepOutcome{Op: op, Status: "refused", Detail: err.Error()}, nil
}

// snapshotViews fills the result with the derived views, plus any optional
// cross-ledger views the scenario asked for.
func snapshotViews(ctx context.Context, st *store.Store, clock *testutil.Clock,
	scenario *Scenario, result *Result,
) error {
	eng := derived.New(st, clock.Now)

	var err error
	if result.Unowned, err = eng.UnownedEntities(ctx); err != nil {
		return fmt.Errorf("snapshot unowned: %w", err)
	}
	if result.Deferred, err = eng.DeferredEntities(ctx); err != nil {
		return fmt.Errorf("snapshot deferred: %w", err)
	}
	if result.Continuity, err = eng.ContinuityRuns(ctx); err != nil {
		return fmt.Errorf("snapshot continuity: %w", err)
	}
	if result.TimeInState, err = eng.TimeInState(ctx); err != nil {
		return fmt.Errorf("snapshot time in state: %w", err)
	}

	queries := crossledger.New(st, nil, clock.Now)
	if p := scenario.Snapshot.Promises; p != nil {
		result.Promises, err = queries.OpenPromises(ctx, crossledger.PromiseConvention{
			ScopeRef:            p.Scope,
			ConfirmingEventType: p.ConfirmedBy,
		})
		if err != nil {
			return fmt.Errorf("snapshot promises: %w", err)
		}
	}
	if scenario.Snapshot.Dwell {
		if result.Dwell, err = queries.DwellVsExpectation(ctx, ""); err != nil {
			return fmt.Errorf("snapshot dwell: %w", err)
		}
	}
	return nil
}
