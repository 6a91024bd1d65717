// Package chroma stores each document's chunks in its own Chroma
// collection. Vectors are computed by the configured domain.Embedder and
// passed to Chroma explicitly.
package chroma

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const chunkIDKey = "chunk_id"

type Config struct {
	BaseURL          string
	CollectionPrefix string
}

type Storage struct {
	client chroma.Client
	prefix string
	ef     embeddings.EmbeddingFunction
}

func NewStorage(cfg Config) (*Storage, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "doc_"
	}
	return &Storage{
		client: client,
		prefix: prefix,
		// never used for our own vectors; chroma requires one per collection
		ef: embeddings.NewConsistentHashEmbeddingFunction(),
	}, nil
}

func (s *Storage) Close() error { return s.client.Close() }

func (s *Storage) CollectionName(docID string) string {
	return collectionName(s.prefix, docID)
}

func collectionName(prefix, docID string) string {
	return prefix + strings.ReplaceAll(docID, "-", "_")
}

func (s *Storage) Add(ctx context.Context, docID string, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if _, err := s.Delete(ctx, docID); err != nil {
		return err
	}
	col, err := s.client.GetOrCreateCollection(ctx, s.CollectionName(docID),
		chroma.WithCollectionMetadataCreate(chroma.NewMetadata(chroma.NewStringAttribute("hnsw:space", "cosine"))),
		chroma.WithEmbeddingFunctionCreate(s.ef),
	)
	if err != nil {
		return fmt.Errorf("failed to create collection for %s: %w", docID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, len(chunks))
	texts := make([]string, len(chunks))
	embs := make([]embeddings.Embedding, len(chunks))
	metas := make([]chroma.DocumentMetadata, len(chunks))
	for i, c := range chunks {
		ids[i] = chroma.DocumentID(fmt.Sprintf("%s_%d", docID, c.Index))
		texts[i] = c.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(toFloat32(vectors[i]))
		metas[i] = chroma.NewDocumentMetadata(chroma.NewIntAttribute(chunkIDKey, int64(c.Index)))
	}
	err = col.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithEmbeddings(embs...),
		chroma.WithMetadatas(metas...),
	)
	if err != nil {
		_ = s.client.DeleteCollection(ctx, s.CollectionName(docID))
		return fmt.Errorf("failed to add chunks for %s: %w", docID, err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, docID string, vector []float64, topK int) ([]domain.RetrievalHit, error) {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	ok, err := s.Has(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", docID, domain.ErrNotFound)
	}
	col, err := s.client.GetCollection(ctx, s.CollectionName(docID), chroma.WithEmbeddingFunctionGet(s.ef))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection for %s: %w", docID, err)
	}
	count, err := col.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []domain.RetrievalHit{}, nil
	}
	r, err := col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(toFloat32(vector))),
		chroma.WithNResults(min(topK, count)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}
	docGroups := r.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return []domain.RetrievalHit{}, nil
	}
	docs := docGroups[0]
	metadatas := r.GetMetadatasGroups()[0]
	distances := r.GetDistancesGroups()[0]

	texts := make([]string, len(docs))
	idx := make([]int, len(docs))
	dist := make([]float64, len(docs))
	for i := range docs {
		texts[i] = docs[i].ContentString()
		if i < len(metadatas) && metadatas[i] != nil {
			if v, ok := metadatas[i].GetInt(chunkIDKey); ok {
				idx[i] = int(v)
			}
		}
		if i < len(distances) {
			dist[i] = float64(distances[i])
		}
	}
	return buildHits(texts, idx, dist), nil
}

func (s *Storage) Delete(ctx context.Context, docID string) (bool, error) {
	ok, err := s.Has(ctx, docID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.client.DeleteCollection(ctx, s.CollectionName(docID)); err != nil {
		return false, fmt.Errorf("failed to delete collection for %s: %w", docID, err)
	}
	return true, nil
}

func (s *Storage) Has(ctx context.Context, docID string) (bool, error) {
	cols, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	name := s.CollectionName(docID)
	for _, c := range cols {
		if c.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

// buildHits converts cosine distances into relevance scores. Chroma
// returns results nearest first, so ranks follow input order.
func buildHits(texts []string, idx []int, distances []float64) []domain.RetrievalHit {
	hits := make([]domain.RetrievalHit, len(texts))
	for i := range texts {
		score := vectorstore.Relevance(1 - distances[i])
		if i > 0 && score > hits[i-1].Score {
			score = hits[i-1].Score
		}
		hits[i] = domain.RetrievalHit{
			ChunkIndex: idx[i],
			Text:       texts[i],
			Score:      score,
			Rank:       i + 1,
		}
	}
	return hits
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
