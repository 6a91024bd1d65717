package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

type fakeRetriever struct {
	hits  []domain.RetrievalHit
	err   error
	calls int
}

func (f *fakeRetriever) Retrieve(context.Context, string, string, int) ([]domain.RetrievalHit, error) {
	f.calls++
	return f.hits, f.err
}

type fakeModel struct {
	reply  string
	err    error
	prompt string
	delay  time.Duration
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func hits(texts ...string) []domain.RetrievalHit {
	out := make([]domain.RetrievalHit, len(texts))
	for i, t := range texts {
		out[i] = domain.RetrievalHit{ChunkIndex: i, Text: t, Score: 1 - 0.1*float64(i), Rank: i + 1}
	}
	return out
}

func TestChitChatBypassesRetrieval(t *testing.T) {
	r := &fakeRetriever{err: errors.New("must not be called")}
	s := New(r, nil, Config{})
	for _, q := range []string{"Hello!", "thanks a lot", "Bye", "What can you do?", "namaste"} {
		t.Run(q, func(t *testing.T) {
			a := s.Answer(context.Background(), q, "doc-1", nil)
			assert.Equal(t, ConfidenceChitChat, a.Confidence)
			assert.Empty(t, a.SourceSnippets)
			assert.NotEmpty(t, a.Answer)
		})
	}
	assert.Zero(t, r.calls)
}

func TestChitChatUsesLocale(t *testing.T) {
	s := New(&fakeRetriever{}, nil, Config{})
	a := s.Answer(context.Background(), "namaste", "", nil)
	assert.Equal(t, DefaultTemplates().Text("hi", IntentGreeting), a.Answer)
}

func TestNoDocument(t *testing.T) {
	s := New(&fakeRetriever{err: fmt.Errorf("collection x: %w", domain.ErrNotFound)}, nil, Config{})

	a := s.Answer(context.Background(), "What does the document say about revenue?", "", nil)
	assert.Equal(t, ConfidenceNone, a.Confidence)
	assert.Equal(t, DefaultTemplates().Text("en", IntentUploadPrompt), a.Answer)

	a = s.Answer(context.Background(), "Summarize the report", "unknown-id", nil)
	assert.Equal(t, ConfidenceNone, a.Confidence)

	a = s.Answer(context.Background(), "How tall is Everest?", "", nil)
	assert.Equal(t, ConfidenceGeneral, a.Confidence)
}

func TestEmptyHitsIsNotFound(t *testing.T) {
	s := New(&fakeRetriever{hits: []domain.RetrievalHit{}}, nil, Config{})
	a := s.Answer(context.Background(), "What is Rust?", "d", nil)
	assert.Equal(t, ConfidenceNone, a.Confidence)
	assert.Equal(t, DefaultTemplates().Text("en", IntentNotFound), a.Answer)
}

func TestUpstreamFailureDegrades(t *testing.T) {
	s := New(&fakeRetriever{err: fmt.Errorf("%w: timeout", domain.ErrUpstream)}, nil, Config{})
	a := s.Answer(context.Background(), "What is Rust?", "d", nil)
	assert.Equal(t, ConfidenceNone, a.Confidence)
	assert.Equal(t, DefaultTemplates().Text("en", IntentDegraded), a.Answer)
}

func TestExtractiveAnswer(t *testing.T) {
	r := &fakeRetriever{hits: hits("Python is a programming language. It is used for web development.")}
	s := New(r, nil, Config{})
	a := s.Answer(context.Background(), "What is Python?", "d", nil)
	assert.Equal(t, ConfidenceSynthesized, a.Confidence)
	assert.Contains(t, a.Answer, "Python is a programming language.")
	assert.NotEmpty(t, a.SourceSnippets)
	assert.Equal(t, "Based on 1 relevant passages from the document", a.Justification)
}

func TestSnippetsAreTopThree(t *testing.T) {
	r := &fakeRetriever{hits: hits("Alpha is first.", "Beta is second.", "Gamma is third.", "Delta is fourth.")}
	a := New(r, nil, Config{}).Answer(context.Background(), "What is alpha?", "d", nil)
	assert.Equal(t, []string{"Alpha is first.", "Beta is second.", "Gamma is third."}, a.SourceSnippets)
}

func TestGenerativeAnswerWithHistory(t *testing.T) {
	m := &fakeModel{reply: "Python is a general purpose programming language."}
	r := &fakeRetriever{hits: hits("Python is a programming language.")}
	history := []domain.Turn{
		{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3"}, {Question: "q4", Answer: "a4"},
	}
	a := New(r, m, Config{}).Answer(context.Background(), "What is Python?", "d", history)
	assert.Equal(t, m.reply, a.Answer)
	assert.Equal(t, ConfidenceSynthesized, a.Confidence)
	assert.NotContains(t, m.prompt, "Q: q1")
	assert.Contains(t, m.prompt, "Q: q4\nA: a4")
	assert.Contains(t, m.prompt, "Python is a programming language.")
}

func TestGeneratorFailureFallsBackToExtractive(t *testing.T) {
	m := &fakeModel{err: errors.New("503")}
	r := &fakeRetriever{hits: hits("Python is a programming language.")}
	a := New(r, m, Config{}).Answer(context.Background(), "What is Python?", "d", nil)
	assert.Equal(t, "Python is a programming language.", a.Answer)
}

func TestGeneratorTimeoutFallsBackToExtractive(t *testing.T) {
	m := &fakeModel{reply: "late", delay: time.Second}
	r := &fakeRetriever{hits: hits("Python is a programming language.")}
	a := New(r, m, Config{UpstreamTimeout: 20 * time.Millisecond}).Answer(context.Background(), "What is Python?", "d", nil)
	assert.Equal(t, "Python is a programming language.", a.Answer)
}

func TestShortGenerativeAnswerWinsOverNothing(t *testing.T) {
	m := &fakeModel{reply: "Yes."}
	r := &fakeRetriever{hits: hits("Unrelated words only here.")}
	a := New(r, m, Config{}).Answer(context.Background(), "Is Python typed?", "d", nil)
	assert.Equal(t, "Yes.", a.Answer)
}

func TestCouldNotExtract(t *testing.T) {
	r := &fakeRetriever{hits: hits("Completely unrelated passage.")}
	a := New(r, nil, Config{}).Answer(context.Background(), "What is Python?", "d", nil)
	assert.Equal(t, DefaultTemplates().Text("en", IntentCouldNotAnswer), a.Answer)
	assert.Equal(t, ConfidenceWeak, a.Confidence)
	assert.NotEmpty(t, a.SourceSnippets)
}

func TestExtractPrefersSignalSentences(t *testing.T) {
	passages := "The project uses Go. The main objective of the project is speed. " +
		"Project. Weather was nice."
	got := Extract("What is the project objective?", passages)
	require.NotEmpty(t, got)
	first := strings.SplitAfter(got, ".")[0]
	assert.Equal(t, "The project uses Go.", first, "selected sentences keep document order")
	assert.Contains(t, got, "main objective")
	assert.NotContains(t, got, "Weather")
}

func TestChitChatIntent(t *testing.T) {
	tests := []struct {
		in     string
		intent Intent
		ok     bool
	}{
		{"Hi", IntentGreeting, true},
		{"  good   morning!! ", IntentGreeting, true},
		{"thank you so much", IntentThanks, true},
		{"see you later", IntentFarewell, true},
		{"who are you?", IntentCapabilities, true},
		{"hi, what is the main idea of section 2?", "", false},
		{"What is Python?", "", false},
	}
	for _, tt := range tests {
		got, ok := ChitChatIntent(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.intent, got, tt.in)
	}
}
