// Package retriever embeds a query and looks it up in a document's
// collection.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"docqa/internal/domain"
	"docqa/internal/metrics"
	"docqa/internal/textutil"
	"docqa/internal/vectorstore"
)

// ChunkSource returns every chunk of a document in index order. It is
// used to rank lexically when the embedding carries no signal.
type ChunkSource interface {
	Chunks(ctx context.Context, docID string) ([]domain.Chunk, error)
}

type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	chunks   ChunkSource
	metrics  *metrics.Metrics
	log      *slog.Logger
}

type Option func(*Retriever)

func WithChunkSource(src ChunkSource) Option { return func(r *Retriever) { r.chunks = src } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Retriever) { r.metrics = m } }

func WithLogger(log *slog.Logger) Option { return func(r *Retriever) { r.log = log } }

func New(embedder domain.Embedder, index domain.VectorIndex, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topK hits for query ordered by non-increasing
// relevance. An embedding failure is reported as domain.ErrUpstream and an
// unknown document as domain.ErrNotFound.
func (r *Retriever) Retrieve(ctx context.Context, docID, query string, topK int) ([]domain.RetrievalHit, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	start := time.Now()
	defer func() { r.metrics.ObserveRetrieval(time.Since(start)) }()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.metrics.UpstreamFailure("embedder")
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrUpstream, err)
	}
	if isZero(vec) {
		return r.lexical(ctx, docID, query, topK)
	}
	hits, err := r.index.Query(ctx, docID, vec, topK)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 && allZero(hits) {
		return r.lexical(ctx, docID, query, topK)
	}
	return hits, nil
}

// lexical ranks all chunks by token overlap with the query. Without a
// chunk source it falls back to whatever the index returns.
func (r *Retriever) lexical(ctx context.Context, docID, query string, topK int) ([]domain.RetrievalHit, error) {
	if r.chunks == nil {
		if ok, err := r.index.Has(ctx, docID); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("collection %s: %w", docID, domain.ErrNotFound)
		}
		return []domain.RetrievalHit{}, nil
	}
	chunks, err := r.chunks.Chunks(ctx, docID)
	if err != nil {
		return nil, err
	}
	r.log.Debug("lexical fallback", "doc_id", docID, "chunks", len(chunks))
	qset := make(map[string]struct{})
	for _, t := range textutil.Tokens(query) {
		qset[t] = struct{}{}
	}
	scores := make([]float64, len(chunks))
	for i, c := range chunks {
		scores[i] = textutil.Ochiai(qset, c.Text)
	}
	hits := vectorstore.TopK(chunks, scores, topK)
	// keep only chunks that share at least one token with the query
	return slices.DeleteFunc(hits, func(h domain.RetrievalHit) bool { return h.Score == 0 }), nil
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func allZero(hits []domain.RetrievalHit) bool {
	for _, h := range hits {
		if h.Score > 1e-9 {
			return false
		}
	}
	return true
}
