// Package crossledger answers questions that span both ledgers: promises
// recognized on the state side that the operational side has not confirmed,
// and stage dwell measured from operational events against an expectation
// table. All queries are read-only and derive their answers at call time.
package crossledger

import (
	"fmt"
	"time"

	"github.com/roach88/scrimshaw/internal/store"
)

// timeLayout matches the format ledger writers stamp into created_at and
// declared_at, which is also what SQLite's julianday() parses.
const timeLayout = "2006-01-02 15:04:05"

// PayloadError reports a row whose payload cannot carry the query's
// convention: malformed JSON, a missing field, or a wrong field type.
// Cross-ledger queries fail hard on these rather than skipping the row,
// because a skipped promise is an invisible one.
type PayloadError struct {
	EntityRef string
	Reason    string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed payload for %s: %s", e.EntityRef, e.Reason)
}

// Queries runs cross-ledger reads against a single store.
type Queries struct {
	store        *store.Store
	expectations StageExpectations
	clock        func() time.Time
}

// New returns a Queries bound to the store. A nil expectations table falls
// back to the built-in defaults; a nil clock falls back to time.Now.
func New(s *store.Store, expectations StageExpectations, clock func() time.Time) *Queries {
	if expectations == nil {
		expectations = DefaultStageExpectations()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Queries{store: s, expectations: expectations, clock: clock}
}
