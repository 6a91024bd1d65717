package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
)

func TestSelfRetrieval(t *testing.T) {
	ctx := context.Background()
	text := "Go has goroutines for concurrency.\n\nChannels pass values between goroutines.\n\n" +
		"Interfaces are satisfied implicitly.\n\nModules declare dependencies in go.mod."
	doc := domain.Document{ID: "doc", Content: text}
	chunks := chunker.NewParagraphChunker(40, 0).Chunk(doc)
	require.Len(t, chunks, 4)

	emb := hashing.NewEmbedder(256)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	s := NewStorage()
	require.NoError(t, s.Add(ctx, doc.ID, chunks, vecs))

	for i, c := range chunks {
		t.Run(fmt.Sprintf("chunk_%d", i), func(t *testing.T) {
			hits, err := s.Query(ctx, doc.ID, vecs[i], 3)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, c.Index, hits[0].ChunkIndex)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
			for j := 1; j < len(hits); j++ {
				assert.LessOrEqual(t, hits[j].Score, hits[j-1].Score)
			}
		})
	}
}

func TestQueryUnknownAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	_, err := s.Query(ctx, "missing", []float64{1}, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Add(ctx, "empty", nil, nil))
	hits, err := s.Query(ctx, "empty", []float64{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Add(ctx, "d", []domain.Chunk{{DocumentID: "d", Text: "x"}}, [][]float64{{1}}))

	ok, err := s.Delete(ctx, "d")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, "d")
	require.NoError(t, err)
	assert.False(t, ok)

	has, _ := s.Has(ctx, "d")
	assert.False(t, has)
}

func TestAddRejectsMismatch(t *testing.T) {
	s := NewStorage()
	err := s.Add(context.Background(), "d", []domain.Chunk{{}, {}}, [][]float64{{1, 2}, {1}})
	assert.Error(t, err)
	has, _ := s.Has(context.Background(), "d")
	assert.False(t, has, "failed add must not publish a partial collection")
}

func TestConcurrentQueriesDuringAdd(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	chunks := []domain.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}
	vecs := [][]float64{{1, 0}, {0, 1}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, "d", chunks, vecs)
		}()
		go func() {
			defer wg.Done()
			hits, err := s.Query(ctx, "d", []float64{1, 0}, 5)
			if err == nil {
				assert.Len(t, hits, 2)
			}
		}()
	}
	wg.Wait()
}
