// Package vectorstore holds the scoring helpers shared by the VectorIndex
// backends under it.
package vectorstore

import (
	"math"
	"slices"

	"docqa/internal/domain"
)

// DefaultTopK is used when a caller passes a non-positive topK.
const DefaultTopK = 5

// Cosine returns the cosine similarity of a and b, or 0 when either is the
// zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Relevance maps a cosine similarity into [0,1].
func Relevance(cos float64) float64 {
	return math.Max(0, math.Min(1, cos))
}

// TopK ranks chunks by their similarity score and returns at most topK hits
// with ranks starting at 1. Ties keep chunk order.
func TopK(chunks []domain.Chunk, scores []float64, topK int) []domain.RetrievalHit {
	if topK <= 0 {
		topK = DefaultTopK
	}
	idxs := make([]int, len(chunks))
	for i := range idxs {
		idxs[i] = i
	}
	slices.SortStableFunc(idxs, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})
	if topK > len(idxs) {
		topK = len(idxs)
	}
	hits := make([]domain.RetrievalHit, 0, topK)
	for r, j := range idxs[:topK] {
		hits = append(hits, domain.RetrievalHit{
			ChunkIndex: chunks[j].Index,
			Text:       chunks[j].Text,
			Score:      Relevance(scores[j]),
			Rank:       r + 1,
		})
	}
	return hits
}
