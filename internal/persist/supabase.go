package persist

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig points at a hosted Postgres exposed through PostgREST.
type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// SupabaseWriter inserts records into the exchanges and documents tables of
// a Supabase project.
type SupabaseWriter struct {
	client *supabase.Client
}

// NewSupabaseWriter creates a writer from cfg.
func NewSupabaseWriter(cfg SupabaseConfig) (*SupabaseWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseWriter{client: client}, nil
}

// WriteExchange implements Writer.
func (w *SupabaseWriter) WriteExchange(_ context.Context, ex Exchange) error {
	_, _, err := w.client.From("exchanges").
		Insert(ex, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert exchange %s: %w", ex.ID, err)
	}
	return nil
}

// WriteDocument implements Writer.
func (w *SupabaseWriter) WriteDocument(_ context.Context, doc Document) error {
	_, _, err := w.client.From("documents").
		Insert(doc, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}
