// Package rag retrieves document context for retrieval-augmented chat.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HerbHall/parley/pkg/llm"
)

// ErrNoCollection is returned when a retrieval names no collection.
var ErrNoCollection = errors.New("collection name is required")

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// Chunk is one stored piece of a document.
type Chunk struct {
	ID      string
	Score   float32
	Content string
}

// Searcher finds the stored chunks nearest to a vector.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Chunk, error)
}

// Retriever turns a question into document context.
type Retriever struct {
	embedder llm.Embedder
	searcher Searcher
	topK     int
}

// NewRetriever creates a retriever. A non-positive topK uses DefaultTopK.
func NewRetriever(embedder llm.Embedder, searcher Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK}
}

// Context embeds question, searches collection and joins the matching chunk
// contents with blank lines, most relevant first.
func (r *Retriever) Context(ctx context.Context, collection, question string) (string, error) {
	if collection == "" {
		return "", ErrNoCollection
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	chunks, err := r.searcher.Search(ctx, collection, vector, r.topK)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", collection, err)
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Content != "" {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
