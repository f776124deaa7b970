package store

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// appendOnlyMarker is the message prefix raised by the schema triggers.
// Detection keys off it so a blocked mutation is distinguishable from
// ordinary constraint failures (foreign keys, CHECK, unique indexes).
const appendOnlyMarker = "append-only violation"

// IsAppendOnlyViolation reports whether err is the storage layer refusing
// to mutate committed ledger history. An attempted UPDATE or DELETE against
// either ledger is a programming/integration error - a bypass of the
// boundary modules - and must never be silently caught and ignored.
func IsAppendOnlyViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger &&
			strings.Contains(sqliteErr.Error(), appendOnlyMarker) {
			return true
		}
	}

	// Triggers raised through wrapped drivers lose the typed error but
	// keep the message.
	return strings.Contains(err.Error(), appendOnlyMarker)
}

// IsConstraintViolation reports whether err is an ordinary integrity
// failure (duplicate key, foreign key, CHECK). Append-only violations are
// excluded: those have their own category.
func IsConstraintViolation(err error) bool {
	if err == nil || IsAppendOnlyViolation(err) {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
