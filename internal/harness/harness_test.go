package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	entityQuote = "org:acme/entity:quote:1"
	actorJane   = "org:acme/actor:jane"
	actorAdmin  = "org:acme/actor:admin"
	scopeRel    = "org:acme/scope:reliability"
)

func ownedDeclareScenario() *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline test scenario",
		Steps: []Step{
			{Register: &RegisterStep{Entity: entityQuote, Cadence: 7}},
			{Assign: &AssignStep{Entity: entityQuote, Owner: actorJane, By: actorAdmin}},
			{Declare: &DeclareStep{
				Entity: entityQuote, Scope: scopeRel, Actor: actorJane,
				Text: "fixture validated",
			}},
		},
	}
}

func TestRunRecordsStepOutcomes(t *testing.T) {
	result, err := Run(ownedDeclareScenario())
	require.NoError(t, err)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, StepOutcome{Op: "register", Status: "ok", Detail: "registered " + entityQuote}, result.Steps[0])
	assert.Equal(t, "assign", result.Steps[1].Op)
	assert.Equal(t, StepOutcome{Op: "declare", Status: "ok", Detail: "declaration 1 (REAFFIRMATION)"}, result.Steps[2])

	assert.Empty(t, result.Unowned)
	require.Len(t, result.TimeInState, 1)
	assert.Equal(t, "fixture validated", result.TimeInState[0].StateText)
	assert.Equal(t, "2024-03-01 12:00:00", result.TimeInState[0].DeclaredAt)
}

func TestRunExpectedRefusalIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "refusal",
		Description: "declaring an unowned entity is refused",
		Steps: []Step{
			{Register: &RegisterStep{Entity: entityQuote, Cadence: 7}},
			{Declare: &DeclareStep{
				Entity: entityQuote, Scope: scopeRel, Actor: actorJane,
				Text:          "fixture validated",
				ExpectRefusal: "unowned recognition",
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, "refused", result.Steps[1].Status)
	assert.Contains(t, result.Steps[1].Detail, "unowned recognition")
}

func TestRunFailsWhenExpectedRefusalIsAccepted(t *testing.T) {
	scenario := ownedDeclareScenario()
	scenario.Steps[2].Declare.ExpectRefusal = "unowned recognition"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "but the write was accepted")
}

func TestRunFailsOnUnexpectedRefusal(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "declare without ownership, no expectation",
		Steps: []Step{
			{Register: &RegisterStep{Entity: entityQuote, Cadence: 7}},
			{Declare: &DeclareStep{
				Entity: entityQuote, Scope: scopeRel, Actor: actorJane,
				Text: "fixture validated",
			}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unowned recognition")
}

func TestRunFailsOnWrongRefusalCategory(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong-category",
		Description: "expectation names the wrong refusal",
		Steps: []Step{
			{Register: &RegisterStep{Entity: entityQuote, Cadence: 7}},
			{Declare: &DeclareStep{
				Entity: entityQuote, Scope: scopeRel, Actor: actorJane,
				Text:          "fixture validated",
				ExpectRefusal: "no proxy recognition",
			}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain")
}

func TestRunAdvanceDrivesDeferred(t *testing.T) {
	scenario := ownedDeclareScenario()
	scenario.Steps = append(scenario.Steps, Step{Advance: &AdvanceStep{Days: 10}})

	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Deferred, 1)
	assert.Equal(t, entityQuote, result.Deferred[0].EntityRef)
	assert.Equal(t, 10, result.Deferred[0].DaysSince)
	require.Len(t, result.TimeInState, 1)
	assert.Equal(t, 10, result.TimeInState[0].DaysSince)
}

func TestRunIsolation(t *testing.T) {
	// Two runs of the same scenario see identical fresh state.
	first, err := Run(ownedDeclareScenario())
	require.NoError(t, err)
	second, err := Run(ownedDeclareScenario())
	require.NoError(t, err)

	assert.Equal(t, first.Steps, second.Steps)
	assert.Equal(t, first.TimeInState, second.TimeInState)
}
