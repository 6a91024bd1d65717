package domain

import (
	"context"
	"time"
)

// Document represents a single uploaded file registered with the system.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	ChunkCount int       `json:"chunks"`
	IndexRef   string    `json:"collection_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a bounded span of a document used for indexing.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// RetrievalHit is a chunk returned for a query, ranked by relevance.
// Rank starts at 1.
type RetrievalHit struct {
	ChunkIndex int     `json:"chunk_id"`
	Text       string  `json:"content"`
	Score      float64 `json:"relevance_score"`
	Rank       int     `json:"rank"`
}

// Turn is one exchange of a conversation with the assistant.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is the result of answering a question.
type Answer struct {
	Answer         string   `json:"answer"`
	Justification  string   `json:"justification"`
	SourceSnippets []string `json:"source_snippets"`
	Confidence     float64  `json:"confidence"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// VectorIndex stores chunk embeddings in one collection per document.
type VectorIndex interface {
	// Add registers all chunks of a document. Readers never observe a
	// partially registered collection.
	Add(ctx context.Context, docID string, chunks []Chunk, vectors [][]float64) error
	// Query returns hits ordered by non-increasing cosine similarity.
	// Unknown docID yields ErrNotFound; an empty collection yields no hits.
	Query(ctx context.Context, docID string, vector []float64, topK int) ([]RetrievalHit, error)
	// Delete drops the collection and reports whether it existed.
	Delete(ctx context.Context, docID string) (bool, error)
	// Has reports whether a collection exists for docID.
	Has(ctx context.Context, docID string) (bool, error)
}

// GenerativeModel completes a prompt. A nil GenerativeModel is a valid
// configuration.
type GenerativeModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// TextExtractor turns raw file bytes into plain text.
type TextExtractor interface {
	Extract(data []byte, kind string) (string, error)
	Supports(kind string) bool
}

// DocumentStore persists document metadata across restarts.
type DocumentStore interface {
	Save(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, id string) (bool, error)
}
