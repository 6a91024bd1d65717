package quiz

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0, nil)
	require.NoError(t, m.Create(ctx, *sampleSession(FormatMCQ)))

	qs, err := m.Questions(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, qs, 2)

	res, err := m.Evaluate(ctx, "s", "q_1", "A")
	require.NoError(t, err)
	assert.False(t, res.Correct)

	_, err = m.Evaluate(ctx, "s", "q_1", "B")
	assert.ErrorIs(t, err, domain.ErrUnknownQuestion)

	qs, err = m.Questions(ctx, "s")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "q_2", qs[0].ID)

	p, err := m.End(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Answered)

	_, err = m.Progress(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Evaluate(ctx, "s", "q_2", "A")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
	_, err = m.End(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreEmptySessionIsRemoved(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0, nil)
	require.NoError(t, m.Create(ctx, *sampleSession(FormatMCQ)))
	_, err := m.Evaluate(ctx, "s", "q_1", "B")
	require.NoError(t, err)
	res, err := m.Evaluate(ctx, "s", "q_2", "A")
	require.NoError(t, err)
	require.NotNil(t, res.Final)
	assert.Equal(t, 100.0, res.Final.AverageScore)
	assert.Zero(t, m.Len())
}

func TestMemoryStoreGradesOnceUnderContention(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0, nil)
	require.NoError(t, m.Create(ctx, *sampleSession(FormatMCQ)))

	var ok, unknown atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Evaluate(ctx, "s", "q_1", "B")
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, domain.ErrNotFound):
				unknown.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(31), unknown.Load())

	p, err := m.Progress(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Answered)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Minute, nil)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := *sampleSession(FormatMCQ)
	s.CreatedAt = now
	require.NoError(t, m.Create(ctx, s))

	_, err := m.Progress(ctx, "s")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Zero(t, m.Len())
	_, err = m.Progress(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	m := NewMemoryStore(0, nil)
	_, err := m.Hint(context.Background(), "nope", "q_1")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}
