package stateledger

import "fmt"

// RefusalCategory distinguishes the two ownership refusals. Callers need to
// know which remedy applies: assign an owner, or switch actor.
type RefusalCategory string

const (
	// CategoryUnowned: the entity has no currently active owner.
	CategoryUnowned RefusalCategory = "unowned recognition"
	// CategoryProxy: the calling actor is not the currently active owner.
	CategoryProxy RefusalCategory = "no proxy recognition"
)

// RefusalError is an ownership-gated write refused by the recognition
// ledger boundary. Non-retryable: the ledger state, not the input encoding,
// caused the refusal.
type RefusalError struct {
	Category     RefusalCategory
	EntityRef    string
	ActorRef     string
	CurrentOwner string // set only for CategoryProxy
}

func (e *RefusalError) Error() string {
	switch e.Category {
	case CategoryUnowned:
		return fmt.Sprintf(
			"refused (%s): entity %q has no current recognition owner; assign an owner first",
			e.Category, e.EntityRef)
	case CategoryProxy:
		return fmt.Sprintf(
			"refused (%s): actor %q is not the current recognition owner for %q (current owner: %q); only the assigned owner can declare state",
			e.Category, e.ActorRef, e.EntityRef, e.CurrentOwner)
	default:
		return fmt.Sprintf("refused (%s): entity %q, actor %q", e.Category, e.EntityRef, e.ActorRef)
	}
}

// ShapeError reports a declaration that is structurally malformed: empty or
// multi-line text, or an unknown declaration kind. Local, non-retryable.
type ShapeError struct {
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownEntityError reports a reference to an entity that was never
// registered.
type UnknownEntityError struct {
	EntityRef string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("entity %q is not registered", e.EntityRef)
}
