package crossledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDwellClosedPairMeasuredAgainstExpectation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "machining"})
	f.clock.Advance(2 * time.Hour)
	f.emit(t, "stage_completed", entityQuote, map[string]any{"stage": "machining"})

	dwells, err := f.queries.DwellVsExpectation(ctx, "")
	require.NoError(t, err)
	require.Len(t, dwells, 1)

	d := dwells[0]
	assert.Equal(t, entityQuote, d.SubjectRef)
	assert.Equal(t, "machining", d.Stage)
	assert.False(t, d.Open)
	assert.Equal(t, 2*time.Hour, d.Elapsed)
	assert.Equal(t, time.Hour, d.Expected)
	assert.Equal(t, time.Hour, d.Delta)
}

func TestDwellOpenStageMeasuredToQueryClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "inspection"})
	f.clock.Advance(45 * time.Minute)

	dwells, err := f.queries.DwellVsExpectation(ctx, "")
	require.NoError(t, err)
	require.Len(t, dwells, 1)

	d := dwells[0]
	assert.True(t, d.Open)
	assert.Empty(t, d.CompletedAt)
	assert.Equal(t, 45*time.Minute, d.Elapsed)
	assert.Equal(t, 30*time.Minute, d.Expected)
	assert.Equal(t, 15*time.Minute, d.Delta)

	// The same open dwell keeps growing with the clock.
	f.clock.Advance(15 * time.Minute)
	dwells, err = f.queries.DwellVsExpectation(ctx, "")
	require.NoError(t, err)
	require.Len(t, dwells, 1)
	assert.Equal(t, time.Hour, dwells[0].Elapsed)
}

func TestDwellPairsBySubjectAndStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "machining"})
	f.emit(t, "stage_started", entityOrder, map[string]any{"stage": "machining"})
	f.clock.Advance(30 * time.Minute)
	// Only the order completes; the quote's machining stays open.
	f.emit(t, "stage_completed", entityOrder, map[string]any{"stage": "machining"})

	dwells, err := f.queries.DwellVsExpectation(ctx, "")
	require.NoError(t, err)
	require.Len(t, dwells, 2)

	byRef := map[string]Dwell{}
	for _, d := range dwells {
		byRef[d.SubjectRef] = d
	}
	assert.True(t, byRef[entityQuote].Open)
	assert.False(t, byRef[entityOrder].Open)
	assert.Equal(t, 30*time.Minute, byRef[entityOrder].Elapsed)
}

func TestDwellSubjectFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "packing"})
	f.emit(t, "stage_started", entityOrder, map[string]any{"stage": "packing"})

	dwells, err := f.queries.DwellVsExpectation(ctx, entityOrder)
	require.NoError(t, err)
	require.Len(t, dwells, 1)
	assert.Equal(t, entityOrder, dwells[0].SubjectRef)
}

func TestDwellRepeatedStagePairsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A rework loop: the quote visits machining twice.
	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "machining"})
	f.clock.Advance(time.Hour)
	f.emit(t, "stage_completed", entityQuote, map[string]any{"stage": "machining"})
	f.clock.Advance(time.Hour)
	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "machining"})
	f.clock.Advance(30 * time.Minute)
	f.emit(t, "stage_completed", entityQuote, map[string]any{"stage": "machining"})

	dwells, err := f.queries.DwellVsExpectation(ctx, "")
	require.NoError(t, err)
	require.Len(t, dwells, 2)
	assert.Equal(t, time.Hour, dwells[0].Elapsed)
	assert.Equal(t, 30*time.Minute, dwells[1].Elapsed)
}

func TestDwellCompletionWithoutStartIsSkipped(t *testing.T) {
	f := newFixture(t)

	f.emit(t, "stage_completed", entityQuote, map[string]any{"stage": "machining"})

	dwells, err := f.queries.DwellVsExpectation(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, dwells)
}

func TestDwellUnknownStageFailsHard(t *testing.T) {
	f := newFixture(t)

	f.emit(t, "stage_started", entityQuote, map[string]any{"stage": "deburring"})

	_, err := f.queries.DwellVsExpectation(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported stage")
}

func TestDwellMalformedEventDataFailsHard(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		reason string
	}{
		{"no data", nil, "no event data"},
		{"missing stage", map[string]any{"machine": "haas-3"}, `no "stage" field`},
		{"non-string stage", map[string]any{"stage": 4}, "not a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.emit(t, "stage_started", entityQuote, tt.data)

			_, err := f.queries.DwellVsExpectation(context.Background(), "")
			var payloadErr *PayloadError
			require.ErrorAs(t, err, &payloadErr)
			assert.Contains(t, payloadErr.Reason, tt.reason)
		})
	}
}
