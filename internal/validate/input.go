// Package validate checks user-submitted text and files before they reach
// the model or the ingestion queue.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/HerbHall/parley/internal/history"
)

// DefaultAllowed admits ASCII letters, digits, whitespace and basic
// punctuation only. Emoji, most non-Latin text and code symbols are rejected.
var DefaultAllowed = regexp.MustCompile(`^[a-zA-Z0-9\s.,!?()-]+$`)

// Default question length limits, in characters.
const (
	DefaultMaxLength      = 1000
	DefaultImageMaxLength = 500
)

// Options describes one validation call.
type Options struct {
	Question  string
	History   []history.Turn
	MaxLength int
	Allowed   *regexp.Regexp
}

// Result lists every rule the input broke.
type Result struct {
	Valid  bool
	Errors []string
}

// Input applies every rule and accumulates the failures.
func Input(o Options) Result {
	allowed := o.Allowed
	if allowed == nil {
		allowed = DefaultAllowed
	}
	maxLen := o.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	var errs []string
	if o.Question == "" {
		errs = append(errs, "Question is required")
	}
	if utf8.RuneCountInString(o.Question) > maxLen {
		errs = append(errs, fmt.Sprintf("Question exceeds max length of %d", maxLen))
	}
	if !allowed.MatchString(o.Question) {
		errs = append(errs, "Question contains disallowed characters")
	}
	for i, t := range o.History {
		if t.Role != "user" && t.Role != "assistant" {
			errs = append(errs, fmt.Sprintf("History entry %d has invalid role %q", i, t.Role))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Pattern compiles an allow-list expression, anchoring it when the caller
// left the anchors off.
func Pattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return DefaultAllowed, nil
	}
	if !strings.HasPrefix(expr, "^") {
		expr = "^(?:" + expr + ")"
	}
	if !strings.HasSuffix(expr, "$") {
		expr += "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile allowed characters: %w", err)
	}
	return re, nil
}
