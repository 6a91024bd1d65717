package quiz

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"docqa/internal/concepts"
)

// ConceptCache memoizes extracted concepts per document. Concurrent misses
// for the same document share one extraction.
type ConceptCache struct {
	extractor concepts.Extractor
	group     singleflight.Group

	mu      sync.RWMutex
	entries map[string]concepts.Concepts
	// gen is bumped by Forget so an extraction racing a delete is not cached.
	gen map[string]uint64
}

func NewConceptCache(extractor concepts.Extractor) *ConceptCache {
	return &ConceptCache{
		extractor: extractor,
		entries:   make(map[string]concepts.Concepts),
		gen:       make(map[string]uint64),
	}
}

func (c *ConceptCache) Get(ctx context.Context, docID string, src ContentSource) (concepts.Concepts, error) {
	c.mu.RLock()
	cached, ok := c.entries[docID]
	gen := c.gen[docID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(docID, func() (any, error) {
		content, err := src.Content(ctx, docID)
		if err != nil {
			return concepts.Concepts{}, err
		}
		extracted := c.extractor.Extract(content)
		c.mu.Lock()
		if c.gen[docID] == gen {
			c.entries[docID] = extracted
		}
		c.mu.Unlock()
		return extracted, nil
	})
	if err != nil {
		return concepts.Concepts{}, err
	}
	return v.(concepts.Concepts), nil
}

func (c *ConceptCache) Forget(docID string) {
	c.mu.Lock()
	delete(c.entries, docID)
	c.gen[docID]++
	c.mu.Unlock()
}

func (c *ConceptCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
