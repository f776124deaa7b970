package harness

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the canonical JSON form of a scenario result. Field order and
// formatting are fixed so golden files stay byte-stable.
type Snapshot struct {
	Scenario    string          `json:"scenario"`
	Steps       []StepOutcome   `json:"steps"`
	Unowned     []unownedRow    `json:"unowned"`
	Deferred    []deferredRow   `json:"deferred"`
	Continuity  []continuityRow `json:"continuity"`
	TimeInState []stateAgeRow   `json:"time_in_state"`
	Promises    []promiseRow    `json:"promises,omitempty"`
	Dwell       []dwellRow      `json:"dwell,omitempty"`
}

type unownedRow struct {
	Entity     string `json:"entity"`
	Registered string `json:"registered"`
}

type deferredRow struct {
	Entity       string `json:"entity"`
	CadenceDays  int    `json:"cadence_days"`
	LastDeclared string `json:"last_declared,omitempty"`
	DaysSince    int    `json:"days_since"`
}

type continuityRow struct {
	Entity         string `json:"entity"`
	Scope          string `json:"scope"`
	Reaffirmations int    `json:"reaffirmations"`
	First          string `json:"first"`
	Last           string `json:"last"`
}

type stateAgeRow struct {
	Entity     string `json:"entity"`
	Scope      string `json:"scope"`
	Text       string `json:"text"`
	Kind       string `json:"kind"`
	DeclaredBy string `json:"declared_by"`
	DeclaredAt string `json:"declared_at"`
	DaysSince  int    `json:"days_since"`
}

type promiseRow struct {
	Entity     string `json:"entity"`
	Deadline   string `json:"deadline"`
	DeclaredBy string `json:"declared_by"`
	DeclaredAt string `json:"declared_at"`
}

type dwellRow struct {
	Subject   string `json:"subject"`
	Stage     string `json:"stage"`
	Started   string `json:"started"`
	Completed string `json:"completed,omitempty"`
	Open      bool   `json:"open"`
	Elapsed   string `json:"elapsed"`
	Expected  string `json:"expected"`
	Delta     string `json:"delta"`
}

// BuildSnapshot converts a result into its canonical snapshot form.
func BuildSnapshot(result *Result) *Snapshot {
	snap := &Snapshot{
		Scenario:    result.Scenario,
		Steps:       result.Steps,
		Unowned:     []unownedRow{},
		Deferred:    []deferredRow{},
		Continuity:  []continuityRow{},
		TimeInState: []stateAgeRow{},
	}

	for _, u := range result.Unowned {
		snap.Unowned = append(snap.Unowned, unownedRow{
			Entity:     u.EntityRef,
			Registered: u.CreatedAt,
		})
	}
	for _, d := range result.Deferred {
		snap.Deferred = append(snap.Deferred, deferredRow{
			Entity:       d.EntityRef,
			CadenceDays:  d.CadenceDays,
			LastDeclared: d.LastDeclaredAt,
			DaysSince:    d.DaysSince,
		})
	}
	for _, r := range result.Continuity {
		snap.Continuity = append(snap.Continuity, continuityRow{
			Entity:         r.EntityRef,
			Scope:          r.ScopeRef,
			Reaffirmations: r.Reaffirmations,
			First:          r.FirstReaffirmed,
			Last:           r.LastReaffirmed,
		})
	}
	for _, a := range result.TimeInState {
		snap.TimeInState = append(snap.TimeInState, stateAgeRow{
			Entity:     a.EntityRef,
			Scope:      a.ScopeRef,
			Text:       a.StateText,
			Kind:       a.Kind,
			DeclaredBy: a.DeclaredBy,
			DeclaredAt: a.DeclaredAt,
			DaysSince:  a.DaysSince,
		})
	}
	for _, p := range result.Promises {
		snap.Promises = append(snap.Promises, promiseRow{
			Entity:     p.EntityRef,
			Deadline:   p.Deadline,
			DeclaredBy: p.DeclaredBy,
			DeclaredAt: p.DeclaredAt,
		})
	}
	for _, d := range result.Dwell {
		snap.Dwell = append(snap.Dwell, dwellRow{
			Subject:   d.SubjectRef,
			Stage:     d.Stage,
			Started:   d.StartedAt,
			Completed: d.CompletedAt,
			Open:      d.Open,
			Elapsed:   formatDuration(d.Elapsed),
			Expected:  formatDuration(d.Expected),
			Delta:     formatDelta(d.Delta),
		})
	}
	return snap
}

// marshalSnapshot renders the snapshot as indented JSON with HTML escaping
// off, so refs and details like "a -> b" appear in goldens as written
// rather than as > escapes.
func marshalSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

func formatDelta(d time.Duration) string {
	if d >= 0 {
		return "+" + formatDuration(d)
	}
	return formatDuration(d)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	data, err := marshalSnapshot(BuildSnapshot(result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
