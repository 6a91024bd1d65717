// Package docstore persists document metadata and content so registered
// documents survive a restart.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docqa/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite expects a handle opened with db.Open so the schema exists.
func NewSQLite(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

func (s *SQLiteStore) Save(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, filename, content, summary, chunk_count, index_ref, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  filename = excluded.filename,
		  content = excluded.content,
		  summary = excluded.summary,
		  chunk_count = excluded.chunk_count,
		  index_ref = excluded.index_ref`,
		doc.ID, doc.Filename, doc.Content, doc.Summary, doc.ChunkCount, doc.IndexRef, doc.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

const selectDocument = `SELECT id, filename, content, summary, chunk_count, index_ref, created_at FROM documents`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (domain.Document, error) {
	var (
		doc     domain.Document
		created int64
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Summary, &doc.ChunkCount, &doc.IndexRef, &created); err != nil {
		return domain.Document{}, err
	}
	doc.CreatedAt = time.Unix(0, created).UTC()
	return doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, err
}

// List returns documents oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
