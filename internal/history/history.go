// Package history bounds the prior conversation forwarded to the model.
package history

import (
	"unicode/utf8"

	"github.com/HerbHall/parley/pkg/llm"
)

// Turn is one prior message of a conversation as sent by the client.
type Turn struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Attachment string `json:"attachment,omitempty"`
	IsRAG      bool   `json:"isRag,omitempty"`
	IsImage    bool   `json:"isImage,omitempty"`
}

// Limits caps how many turns are kept and how long each may be.
type Limits struct {
	MaxTurns int `mapstructure:"max_turns"`
	MaxChars int `mapstructure:"max_chars"`
}

// DefaultLimits keeps the last four turns of at most 500 characters each.
var DefaultLimits = Limits{MaxTurns: 4, MaxChars: 500}

// Truncate returns the last MaxTurns turns in their original order, each
// clipped to its first MaxChars characters. The input is not modified.
// A non-positive limit disables that bound.
func Truncate(turns []Turn, l Limits) []Turn {
	if l.MaxTurns > 0 && len(turns) > l.MaxTurns {
		turns = turns[len(turns)-l.MaxTurns:]
	}

	out := make([]Turn, len(turns))
	for i, t := range turns {
		if l.MaxChars > 0 {
			t.Content = clip(t.Content, l.MaxChars)
		}
		out[i] = t
	}
	return out
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ToMessages converts turns to model messages, followed by the new user
// prompt. Image turns carry a URL rather than text and are skipped.
func ToMessages(turns []Turn, prompt string) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		if t.IsImage {
			continue
		}
		role := llm.RoleUser
		if t.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
}
