package redisstore

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/quiz"
)

func connect(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("DOCQA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOCQA_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, Config{Addr: addr, KeyPrefix: "docqa:test:" + uuid.NewString() + ":", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func session() quiz.Session {
	return quiz.Session{
		ID:     "s1",
		DocID:  "d",
		Format: quiz.FormatMCQ,
		Total:  2,
		Scores: []int{},
		Questions: []quiz.Question{
			{ID: "q_1", Text: "Q1?", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, CorrectLetter: "C"},
			{ID: "q_2", Text: "Q2?", Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}, CorrectLetter: "A"},
		},
	}
}

func TestRedisStoreLifecycle(t *testing.T) {
	s := connect(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, session()))

	res, err := s.Evaluate(ctx, "s1", "q_1", "A")
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, 1, res.Remaining)

	_, err = s.Evaluate(ctx, "s1", "q_1", "C")
	assert.ErrorIs(t, err, domain.ErrUnknownQuestion)

	h, err := s.Hint(ctx, "s1", "q_2")
	require.NoError(t, err)
	assert.Equal(t, "Hint: a...", h)

	p, err := s.End(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, quiz.Progress{Answered: 1, Total: 2, Remaining: 1}, p)

	_, err = s.Progress(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisStoreGradesOnce(t *testing.T) {
	s := connect(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, session()))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Evaluate(ctx, "s1", "q_1", "C"); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
}
