package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbedIsNormalizedAndDeterministic(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Python is a programming language")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Python is a programming language")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-9)
}

func TestEmbedStopwordsOnlyIsZero(t *testing.T) {
	v, err := NewEmbedder(0).Embed(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestRelatedTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(256)
	vecs, err := e.EmbedBatch(context.Background(), []string{
		"What is Python?",
		"Python is a programming language.",
		"Bananas are berries.",
	})
	require.NoError(t, err)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestEmbedHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
