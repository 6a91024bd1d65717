package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is an in-memory vector index using brute-force cosine similarity.
// Collections are immutable once published, so queries only hold the read
// lock long enough to look the collection up.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

// Add builds the collection off-lock and publishes it in one step,
// replacing any previous collection for docID.
func (s *Storage) Add(ctx context.Context, docID string, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	col := &collection{
		chunks:  make([]domain.Chunk, len(chunks)),
		vectors: make([][]float64, len(vectors)),
	}
	copy(col.chunks, chunks)
	for i, v := range vectors {
		if i == 0 {
			col.dimension = len(v)
		} else if len(v) != col.dimension {
			return errors.New("vector dimension mismatch")
		}
		col.vectors[i] = append([]float64(nil), v...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.collections[docID] = col
	s.mu.Unlock()
	return nil
}

func (s *Storage) Query(ctx context.Context, docID string, vector []float64, topK int) ([]domain.RetrievalHit, error) {
	s.mu.RLock()
	col, ok := s.collections[docID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", docID, domain.ErrNotFound)
	}
	if len(col.chunks) == 0 {
		return []domain.RetrievalHit{}, nil
	}
	scores := make([]float64, len(col.vectors))
	for i := range col.vectors {
		scores[i] = vectorstore.Cosine(col.vectors[i], vector)
	}
	return vectorstore.TopK(col.chunks, scores, topK), nil
}

func (s *Storage) Delete(ctx context.Context, docID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[docID]
	delete(s.collections, docID)
	return ok, nil
}

func (s *Storage) Has(ctx context.Context, docID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[docID]
	return ok, nil
}
