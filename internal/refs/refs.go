// Package refs validates the hierarchical reference grammar used for every
// actor, entity, and scope in the ledgers.
//
// Four reference kinds share a common org prefix:
//
//	org:{domain}                          organization
//	org:{domain}/actor:{local-id}         actor
//	org:{domain}/entity:{type}:{local-id} entity
//	org:{domain}/scope:{context}          scope
//
// All references are strictly lowercase to prevent case-sensitivity
// collisions. Validators accept or refuse. They do NOT correct inputs:
// callers that need normalization must do it before calling.
//
// Validation is pure and side-effect free.
package refs

import (
	"fmt"
	"regexp"
	"strings"
)

// Length ceilings. The org domain follows the DNS limit; local ids are
// bounded so references stay usable as index keys.
const (
	maxOrgRefLen    = 257 // "org:" + 253-char domain
	maxActorRefLen  = 360 // org ref + "/actor:" + 100-char local id
	maxEntityRefLen = 410 // org ref + "/entity:" + type + ":" + local id
	maxScopeRefLen  = 360 // org ref + "/scope:" + 100-char context
)

var (
	orgRefPattern = regexp.MustCompile(
		`^org:[a-z0-9]([a-z0-9\-\.]{0,251}[a-z0-9])?$`)
	actorRefPattern = regexp.MustCompile(
		`^org:[a-z0-9]([a-z0-9\-\.]{0,251}[a-z0-9])?/actor:[a-z0-9][a-z0-9\-_\.]{0,99}$`)
	entityRefPattern = regexp.MustCompile(
		`^org:[a-z0-9]([a-z0-9\-\.]{0,251}[a-z0-9])?/entity:[a-z0-9\-]{1,50}:[a-z0-9][a-z0-9\-_\.\:]{0,99}$`)
	scopeRefPattern = regexp.MustCompile(
		`^org:[a-z0-9]([a-z0-9\-\.]{0,251}[a-z0-9])?/scope:[a-z0-9][a-z0-9\-_\.\:]{0,99}$`)
)

// ValidationError describes a reference that was refused. It reports the
// shape of the offending value, never a corrected form.
type ValidationError struct {
	Kind   string // "org_ref", "actor_ref", "entity_ref", or "scope_ref"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

func refuse(kind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// ValidateOrgRef checks an organization reference (org:{domain}).
// The domain is DNS-style: lowercase alphanumerics, hyphens, and dots.
func ValidateOrgRef(orgRef string) error {
	if orgRef == "" {
		return refuse("org_ref", "cannot be empty")
	}
	if len(orgRef) > maxOrgRefLen {
		return refuse("org_ref", "too long (%d chars, max %d)", len(orgRef), maxOrgRefLen)
	}
	if orgRef != strings.ToLower(orgRef) {
		return refuse("org_ref", "must be lowercase (found uppercase characters)")
	}
	if !strings.HasPrefix(orgRef, "org:") {
		return refuse("org_ref", "must start with 'org:'")
	}
	if !orgRefPattern.MatchString(orgRef) {
		return refuse("org_ref", "format invalid (must be org:{domain} with DNS-style domain)")
	}
	return nil
}

// ValidateActorRef checks an actor reference ({org_ref}/actor:{local-id}).
func ValidateActorRef(actorRef string) error {
	if actorRef == "" {
		return refuse("actor_ref", "cannot be empty")
	}
	if len(actorRef) > maxActorRefLen {
		return refuse("actor_ref", "too long (%d chars, max %d)", len(actorRef), maxActorRefLen)
	}
	if actorRef != strings.ToLower(actorRef) {
		return refuse("actor_ref", "must be lowercase (found uppercase characters)")
	}
	if !strings.Contains(actorRef, "/actor:") {
		return refuse("actor_ref", "must contain '/actor:' separator")
	}
	orgPart, _, _ := strings.Cut(actorRef, "/actor:")
	if err := ValidateOrgRef(orgPart); err != nil {
		return refuse("actor_ref", "has invalid org prefix: %v", err)
	}
	if !actorRefPattern.MatchString(actorRef) {
		return refuse("actor_ref", "format invalid (must be org:{domain}/actor:{local-id})")
	}
	return nil
}

// ValidateEntityRef checks an entity reference
// ({org_ref}/entity:{type}:{local-id}). The type names the entity kind
// (1-50 chars); the local id may itself contain colons.
func ValidateEntityRef(entityRef string) error {
	if entityRef == "" {
		return refuse("entity_ref", "cannot be empty")
	}
	if len(entityRef) > maxEntityRefLen {
		return refuse("entity_ref", "too long (%d chars, max %d)", len(entityRef), maxEntityRefLen)
	}
	if entityRef != strings.ToLower(entityRef) {
		return refuse("entity_ref", "must be lowercase (found uppercase characters)")
	}
	if !strings.Contains(entityRef, "/entity:") {
		return refuse("entity_ref", "must contain '/entity:' separator")
	}
	orgPart, entityPart, _ := strings.Cut(entityRef, "/entity:")
	if err := ValidateOrgRef(orgPart); err != nil {
		return refuse("entity_ref", "has invalid org prefix: %v", err)
	}
	if !strings.Contains(entityPart, ":") {
		return refuse("entity_ref", "must have format org:{domain}/entity:{type}:{local-id}")
	}
	if !entityRefPattern.MatchString(entityRef) {
		return refuse("entity_ref", "format invalid (must be org:{domain}/entity:{type}:{local-id})")
	}
	return nil
}

// ValidateScopeRef checks a scope reference ({org_ref}/scope:{context}).
// The context may contain colons, which is how promise conventions such as
// "promise:deadline" are expressed inside a scope.
func ValidateScopeRef(scopeRef string) error {
	if scopeRef == "" {
		return refuse("scope_ref", "cannot be empty")
	}
	if len(scopeRef) > maxScopeRefLen {
		return refuse("scope_ref", "too long (%d chars, max %d)", len(scopeRef), maxScopeRefLen)
	}
	if scopeRef != strings.ToLower(scopeRef) {
		return refuse("scope_ref", "must be lowercase (found uppercase characters)")
	}
	if !strings.Contains(scopeRef, "/scope:") {
		return refuse("scope_ref", "must contain '/scope:' separator")
	}
	orgPart, _, _ := strings.Cut(scopeRef, "/scope:")
	if err := ValidateOrgRef(orgPart); err != nil {
		return refuse("scope_ref", "has invalid org prefix: %v", err)
	}
	if !scopeRefPattern.MatchString(scopeRef) {
		return refuse("scope_ref", "format invalid (must be org:{domain}/scope:{context})")
	}
	return nil
}

// ValidateAll validates the three references a declaration carries, in a
// fixed order: entity, then actor, then scope. It short-circuits on the
// first failure and returns that single descriptive error.
func ValidateAll(entityRef, actorRef, scopeRef string) error {
	if err := ValidateEntityRef(entityRef); err != nil {
		return err
	}
	if err := ValidateActorRef(actorRef); err != nil {
		return err
	}
	if err := ValidateScopeRef(scopeRef); err != nil {
		return err
	}
	return nil
}
