package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant holding one collection per
// document. It uses cosine distance.
type Storage struct {
	url       string
	apiKey    string
	prefix    string
	dimension int
	client    *http.Client
}

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
	// Dimension sizes collections created for documents without chunks.
	Dimension int
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "doc_"
	}
	return &Storage{
		url:       strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		prefix:    prefix,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

// CollectionName maps a document id onto a Qdrant collection name.
func (s *Storage) CollectionName(docID string) string {
	return s.prefix + strings.ReplaceAll(docID, "-", "_")
}

func (s *Storage) Add(ctx context.Context, docID string, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	size := s.dimension
	if len(vectors) > 0 {
		size = len(vectors[0])
	}
	if size <= 0 {
		size = 1
	}
	name := s.CollectionName(docID)
	if _, err := s.Delete(ctx, docID); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}
	if err := s.send(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, name), body, nil); err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":     chunks[i].Index,
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_id":   docID,
				"chunk_id": chunks[i].Index,
				"text":     chunks[i].Text,
			},
		}
	}
	if len(points) == 0 {
		return nil
	}
	return s.send(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, name), map[string]any{"points": points}, nil)
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
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.send(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.CollectionName(docID)), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.RetrievalHit, 0, len(resp.Result))
	for i, r := range resp.Result {
		hit := domain.RetrievalHit{Score: vectorstore.Relevance(r.Score), Rank: i + 1}
		if v, ok := r.Payload["chunk_id"].(float64); ok {
			hit.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			hit.Text = v
		}
		if i > 0 && hit.Score > hits[i-1].Score {
			hit.Score = hits[i-1].Score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Storage) Delete(ctx context.Context, docID string) (bool, error) {
	ok, err := s.Has(ctx, docID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.send(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.CollectionName(docID)), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Has(ctx context.Context, docID string) (bool, error) {
	req, err := s.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.CollectionName(docID)), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("qdrant GET collection failed: %s", resp.Status)
	}
	return true, nil
}

func (s *Storage) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	return req, nil
}

func (s *Storage) send(ctx context.Context, method, url string, body any, out any) error {
	req, err := s.newRequest(ctx, method, url, body)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
