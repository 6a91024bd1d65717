package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

const article = "Go is a programming language. Go was designed at Google. " +
	"The weather was pleasant yesterday. Go programs compile quickly into a single binary. " +
	"Lunch was served at noon."

func TestFrequencyKeepsTopSentencesInOrder(t *testing.T) {
	s := NewFrequencySummarizer(2)
	out, err := s.Summarize(context.Background(), article)
	require.NoError(t, err)
	assert.Contains(t, out, "Go")
	assert.NotContains(t, out, "Lunch")
	assert.Len(t, strings.Split(out, ". "), 2)

	first := strings.Index(article, strings.Split(out, ". ")[0])
	second := strings.Index(article, strings.Split(out, ". ")[1])
	assert.Less(t, first, second)
}

func TestFrequencyShortText(t *testing.T) {
	s := NewFrequencySummarizer(0)
	out, err := s.Summarize(context.Background(), "  no punctuation here  ")
	require.NoError(t, err)
	assert.Equal(t, "no punctuation here", out)
}

type fakeModel struct {
	out    string
	err    error
	prompt string
}

func (f *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func TestGenerativeUsesModel(t *testing.T) {
	m := &fakeModel{out: " A short summary. "}
	s := NewGenerativeSummarizer(m, NewFrequencySummarizer(1), nil)
	out, err := s.Summarize(context.Background(), strings.Repeat("é", 5000))
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", out)
	body := m.prompt[strings.Index(m.prompt, "\n\n")+2:]
	assert.Equal(t, MaxPromptChars, utf8.RuneCountInString(body))
}

func TestGenerativeFallsBack(t *testing.T) {
	for _, m := range []*fakeModel{{err: errors.New("down")}, {out: "  "}} {
		s := NewGenerativeSummarizer(m, NewFrequencySummarizer(1), nil)
		out, err := s.Summarize(context.Background(), "Only sentence here.")
		require.NoError(t, err)
		assert.Equal(t, "Only sentence here.", out)
	}
}

func TestOrPlaceholder(t *testing.T) {
	ctx := context.Background()
	s := NewGenerativeSummarizer(&fakeModel{err: errors.New("down")}, nil, nil)
	assert.Equal(t, Placeholder, OrPlaceholder(ctx, s, "Some text."))
	assert.Equal(t, Placeholder, OrPlaceholder(ctx, nil, "Some text."))
	assert.Equal(t, "Some text.", OrPlaceholder(ctx, NewFrequencySummarizer(3), "Some text."))

	_, err := s.Summarize(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}
