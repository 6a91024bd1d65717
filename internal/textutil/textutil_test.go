package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"terminated", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"trailing fragment", "One. Two without end", []string{"One.", "Two without end"}},
		{"empty", "   ", []string{}},
		{"blank line", "Heading\n\nBody text here. More", []string{"Heading", "Body text here.", "More"}},
		{"single newline", "One line\ncontinues.", []string{"One line\ncontinues."}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Sentences(c.in))
		})
	}
}

func TestTokensDropStopwords(t *testing.T) {
	assert.Equal(t, []string{"python", "programming", "language"}, Tokens("Python is a programming language"))
}

func TestSignatureIgnoresOrderAndStopwords(t *testing.T) {
	a := Signature("What is the purpose of caching?")
	b := Signature("caching purpose: what is it")
	assert.Equal(t, a, b)
	assert.Equal(t, "caching purpose", a)
}

func TestOchiai(t *testing.T) {
	q := TokenSet("python language")
	assert.InDelta(t, 1.0, Ochiai(q, "Python language"), 1e-9)
	assert.Zero(t, Ochiai(q, "nothing shared"))
	assert.Zero(t, Ochiai(map[string]struct{}{}, "text"))
}
