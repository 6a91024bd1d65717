// Package sqlite is a durable VectorIndex backed by SQLite. Similarity is
// computed in process over the collection's rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

type Storage struct {
	db *sql.DB
}

// NewStorage expects a handle opened with db.Open so the schema exists.
func NewStorage(db *sql.DB) *Storage { return &Storage{db: db} }

// Add replaces the collection for docID inside one transaction.
func (s *Storage) Add(ctx context.Context, docID string, chunks []domain.Chunk, vectors [][]float64) (err error) {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO collections(doc_id, dimension) VALUES(?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET dimension = excluded.dimension`, docID, dim); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(doc_id, chunk_index, text, embedding) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return errors.New("vector dimension mismatch")
		}
		if _, err = stmt.ExecContext(ctx, docID, c.Index, c.Text, encode(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, docID string, vector []float64, topK int) ([]domain.RetrievalHit, error) {
	ok, err := s.Has(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", docID, domain.ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, text, embedding FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var scores []float64
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.Index, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.DocumentID = docID
		chunks = append(chunks, c)
		scores = append(scores, vectorstore.Cosine(decode(blob), vector))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []domain.RetrievalHit{}, nil
	}
	return vectorstore.TopK(chunks, scores, topK), nil
}

// Delete drops the collection and its chunks inside one transaction.
func (s *Storage) Delete(ctx context.Context, docID string) (ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE doc_id = ?`, docID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Storage) Has(ctx context.Context, docID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM collections WHERE doc_id = ?`, docID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func encode(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decode(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
