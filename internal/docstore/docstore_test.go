package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/db"
	"docqa/internal/domain"
)

func stores(t *testing.T) map[string]domain.DocumentStore {
	t.Helper()
	h, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return map[string]domain.DocumentStore{
		"sqlite": NewSQLite(h),
		"memory": NewMemory(),
	}
}

func TestDocumentStore(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			second := domain.Document{ID: "b", Filename: "b.txt", Content: "Beta.", ChunkCount: 1, IndexRef: "doc_b", CreatedAt: base.Add(time.Minute)}
			first := domain.Document{ID: "a", Filename: "a.txt", Content: "Alpha.", Summary: "A.", ChunkCount: 2, IndexRef: "doc_a", CreatedAt: base}
			require.NoError(t, s.Save(ctx, second))
			require.NoError(t, s.Save(ctx, first))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, first, got)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID)
			assert.Equal(t, "b", list[1].ID)

			first.Summary = "Updated."
			require.NoError(t, s.Save(ctx, first))
			got, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "Updated.", got.Summary)

			ok, err := s.Delete(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Delete(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Get(ctx, "a")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}
