// Package pgx stores and reads documents in a Postgres table.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/source"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	selectDocument = `SELECT id, body, source_type, metadata FROM documents WHERE id = $1`
	upsertDocument = `INSERT INTO documents (id, body, source_type, metadata)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, source_type = EXCLUDED.source_type, metadata = EXCLUDED.metadata`
)

// Source reads documents from the documents table.
type Source struct {
	conn *pgxpool.Pool
}

// NewSource creates a Source over an existing pool.
func NewSource(conn *pgxpool.Pool) *Source {
	return &Source{conn: conn}
}

func (s *Source) Fetch(ctx context.Context, id string) (source.Document, error) {
	var (
		doc      source.Document
		metadata map[string]any
	)
	err := s.conn.QueryRow(ctx, selectDocument, id).Scan(&doc.ID, &doc.Text, &doc.SourceType, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return source.Document{}, fmt.Errorf("%w: %s", source.ErrNotFound, id)
	}
	if err != nil {
		return source.Document{}, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	doc.Metadata = metadata
	return doc, nil
}

// Save inserts or replaces a document.
func (s *Source) Save(ctx context.Context, doc source.Document) error {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.conn.Exec(ctx, upsertDocument,
		doc.ID,
		util.SanitizePostgresText(doc.Text),
		doc.SourceType,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// Migrate applies the SQL migrations in dir to the database.
func Migrate(databaseURL, dir string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
