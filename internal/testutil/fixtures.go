// Package testutil holds fixture builders shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/parley/internal/history"
	"github.com/HerbHall/parley/internal/persist"
	"github.com/HerbHall/parley/pkg/llm"
)

// NewExchange returns a completed text Exchange with sensible defaults.
// Override individual fields after creation as needed.
func NewExchange(opts ...func(*persist.Exchange)) persist.Exchange {
	ex := persist.Exchange{
		ID:        uuid.New().String(),
		Kind:      persist.KindText,
		Prompt:    "What is the capital of France?",
		Response:  "Paris.",
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&ex)
	}
	return ex
}

// WithKind sets the exchange kind.
func WithKind(k persist.Kind) func(*persist.Exchange) {
	return func(ex *persist.Exchange) { ex.Kind = k }
}

// WithUser sets the owning user.
func WithUser(id string) func(*persist.Exchange) {
	return func(ex *persist.Exchange) { ex.UserID = id }
}

// WithCollection marks the exchange as answered from a document collection.
func WithCollection(name string) func(*persist.Exchange) {
	return func(ex *persist.Exchange) {
		ex.Kind = persist.KindRAG
		ex.CollectionName = name
	}
}

// Conversation returns n alternating user/assistant turns, starting with the
// user. Each turn is labelled "turn <i> " and padded with size filler bytes.
func Conversation(n, size int) []history.Turn {
	turns := make([]history.Turn, n)
	for i := range turns {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		turns[i] = history.Turn{Role: role, Content: fmt.Sprintf("turn %d %s", i, strings.Repeat("x", size))}
	}
	return turns
}
