package opsledger

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Evaluative vocabulary the operational ledger refuses. Event types must
// describe what happened, never judge it; judgment belongs to humans
// reading the recognition ledger.
var forbiddenWords = []string{
	"good", "bad", "healthy", "unhealthy", "risky", "safe",
	"problem", "issue", "warning", "error", "concern",
}

// VocabularyError reports an event type that contains evaluative language.
// This is a caller bug: non-retryable, never corrected.
type VocabularyError struct {
	EventType string
	Word      string
}

func (e *VocabularyError) Error() string {
	return fmt.Sprintf(
		"event type %q contains evaluative language (%q): use descriptive vocabulary only",
		e.EventType, e.Word)
}

// checkVocabulary refuses evaluative event types. Matching is a
// case-insensitive substring check over the Unicode case-folded form, so
// "QUOTE_PROBLEM" and "quote_Problem" are both refused.
func checkVocabulary(eventType string) error {
	folded := cases.Fold().String(eventType)
	for _, word := range forbiddenWords {
		if strings.Contains(folded, word) {
			return &VocabularyError{EventType: eventType, Word: word}
		}
	}
	return nil
}
