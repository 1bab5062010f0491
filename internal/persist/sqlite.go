package persist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HerbHall/parley/internal/store"
)

// SQLiteWriter stores records in the local database.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter applies the persistence migrations and returns a writer.
func NewSQLiteWriter(ctx context.Context, st *store.SQLiteStore) (*SQLiteWriter, error) {
	if err := st.Migrate(ctx, "persist", migrations()); err != nil {
		return nil, fmt.Errorf("migrate persist: %w", err)
	}
	return &SQLiteWriter{db: st.DB()}, nil
}

// WriteExchange implements Writer.
func (w *SQLiteWriter) WriteExchange(ctx context.Context, ex Exchange) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO exchanges
			(id, kind, prompt, response, user_id, conversation_id, collection_name, file_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, string(ex.Kind), ex.Prompt, ex.Response,
		nullable(ex.UserID), nullable(ex.ConversationID),
		nullable(ex.CollectionName), nullable(ex.FileName),
		ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange %s: %w", ex.ID, err)
	}
	return nil
}

// WriteDocument implements Writer.
func (w *SQLiteWriter) WriteDocument(ctx context.Context, doc Document) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, collection_name, user_id, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.CollectionName, doc.UserID, doc.SizeBytes, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// nullable maps empty strings to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create exchanges table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE exchanges (
						id              TEXT PRIMARY KEY,
						kind            TEXT NOT NULL,
						prompt          TEXT NOT NULL,
						response        TEXT NOT NULL,
						user_id         TEXT,
						conversation_id TEXT,
						collection_name TEXT,
						file_name       TEXT,
						created_at      DATETIME NOT NULL
					)`)
				if err != nil {
					return err
				}
				_, err = tx.Exec(`CREATE INDEX idx_exchanges_conversation ON exchanges(conversation_id, created_at)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "create documents table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE documents (
						id              TEXT PRIMARY KEY,
						name            TEXT NOT NULL,
						collection_name TEXT NOT NULL UNIQUE,
						user_id         TEXT NOT NULL,
						size_bytes      INTEGER NOT NULL DEFAULT 0,
						created_at      DATETIME NOT NULL
					)`)
				return err
			},
		},
	}
}
