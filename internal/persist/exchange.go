// Package persist records completed exchanges and uploaded documents. Writes
// are best effort: failures are logged and counted, never returned to the
// request that produced them.
package persist

import (
	"context"
	"time"
)

// Kind identifies the endpoint that produced an exchange.
type Kind string

// Exchange kinds.
const (
	KindText  Kind = "text"
	KindRAG   Kind = "rag"
	KindImage Kind = "image"
)

// Exchange is one prompt and the full response it produced. It is written
// at most once and never updated.
type Exchange struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CollectionName string    `json:"collection_name,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is an uploaded file handed to the ingestion queue.
type Document struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CollectionName string    `json:"collection_name"`
	UserID         string    `json:"user_id"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Writer stores exchanges and documents.
type Writer interface {
	WriteExchange(ctx context.Context, ex Exchange) error
	WriteDocument(ctx context.Context, doc Document) error
}
