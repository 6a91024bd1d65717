package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = "Python is a programming language. Python is used for web development. " +
	"Django is a framework written in Python. The weather was pleasant. " +
	"Testing follows a simple process with three steps."

func TestKeywords(t *testing.T) {
	got := Keywords(sample, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, "python", got[0])
	for _, k := range Keywords(sample, 50) {
		assert.Greater(t, len(k), 3)
		assert.NotEqual(t, "with", k)
	}
}

func TestKeywordsEmpty(t *testing.T) {
	assert.Empty(t, Keywords("a an the of", 5))
	assert.Empty(t, Keywords("", 5))
}

func TestFacts(t *testing.T) {
	got := Facts(sample, 0)
	assert.Equal(t, []string{
		"Python is a programming language.",
		"Python is used for web development.",
		"Django is a framework written in Python.",
		"Testing follows a simple process with three steps.",
	}, got)
	assert.Len(t, Facts(sample, 2), 2)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Python", Subject("Python is a programming language."))
	assert.Equal(t, "The garbage collector", Subject("The garbage collector is a background process."))
	assert.Equal(t, "testing follows simple", Subject("Testing follows a simple process with three steps."))
}

func TestHeuristicExtract(t *testing.T) {
	c := NewHeuristic().Extract(sample)
	assert.NotEmpty(t, c.Keywords)
	assert.NotEmpty(t, c.Facts)
}
