package crossledger

import (
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// expectationSchema constrains a stage expectation file: a struct of
// stage name to expected duration in whole seconds, strictly positive.
const expectationSchema = `{[string]: int & >0}`

// StageExpectations maps a stage name to its expected duration.
// Unknown stages are a hard error, not a silently-skipped row.
type StageExpectations map[string]time.Duration

// DefaultStageExpectations returns the built-in expectation table for the
// shop's first loop.
func DefaultStageExpectations() StageExpectations {
	return StageExpectations{
		"machining":  3600 * time.Second,
		"inspection": 1800 * time.Second,
		"packing":    900 * time.Second,
	}
}

// Expected returns the expected duration for a stage.
func (se StageExpectations) Expected(stage string) (time.Duration, error) {
	d, ok := se[stage]
	if !ok {
		return 0, fmt.Errorf("unsupported stage: %s", stage)
	}
	return d, nil
}

// Stages returns the known stage names, sorted.
func (se StageExpectations) Stages() []string {
	stages := make([]string, 0, len(se))
	for stage := range se {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	return stages
}

// LoadStageExpectations reads an expectation table from a CUE file.
// The file is unified against the expectation schema before decoding, so
// a zero, negative, or non-integer duration fails the load rather than
// producing a table that misreports dwell deltas.
//
// Example file:
//
//	machining:  3600
//	inspection: 1800
//	packing:    900
func LoadStageExpectations(path string) (StageExpectations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage expectations: %w", err)
	}

	ctx := cuecontext.New()

	schema := ctx.CompileString(expectationSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile expectation schema: %w", err)
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compile stage expectations %s: %w", path, err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate stage expectations %s: %w", path, err)
	}

	var seconds map[string]int64
	if err := unified.Decode(&seconds); err != nil {
		return nil, fmt.Errorf("decode stage expectations %s: %w", path, err)
	}
	if len(seconds) == 0 {
		return nil, fmt.Errorf("stage expectations %s: no stages defined", path)
	}

	expectations := make(StageExpectations, len(seconds))
	for stage, secs := range seconds {
		expectations[stage] = time.Duration(secs) * time.Second
	}
	return expectations, nil
}
