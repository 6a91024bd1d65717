// Package textutil holds the tokenizer, stop-word list and sentence splitter
// shared by the embedding, summarizer, answer and quiz packages.
package textutil

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	wordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe  = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	blankLineRe = regexp.MustCompile(`\n[ \t\r]*\n`)
	stopwords   = buildStopwords()
)

// Words returns the lowercase word tokens of text, stop words included.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Tokens returns the lowercase word tokens of text with stop words removed.
func Tokens(text string) []string {
	raw := Words(text)
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TokenSet returns the distinct words of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Words(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// SignificantSet returns the distinct non-stop-word tokens longer than two runes.
func SignificantSet(text string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, t := range Tokens(text) {
		if len([]rune(t)) <= 2 {
			continue
		}
		m[t] = struct{}{}
	}
	return m
}

// IsStopword reports whether the lowercase token is a stop word.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Sentences splits text into trimmed sentences. A blank line ends a
// sentence. Text without terminal punctuation is returned as a single
// sentence.
func Sentences(text string) []string {
	out := make([]string, 0)
	for _, para := range blankLineRe.Split(text, -1) {
		out = appendSentences(out, para)
	}
	return out
}

func appendSentences(out []string, text string) []string {
	consumed := 0
	for _, s := range sentenceRe.FindAllString(text, -1) {
		consumed += len(s)
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	if consumed < len(text) {
		if rest := strings.TrimSpace(text[consumed:]); rest != "" && strings.ContainsFunc(rest, isLetter) {
			out = append(out, rest)
		}
	}
	return out
}

// Ochiai returns |A∩B| / sqrt(|A||B|) over the word sets of two texts.
func Ochiai(qset map[string]struct{}, text string) float64 {
	seen := TokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

// Signature is the stop-word-stripped, sorted token set of text joined by
// spaces. Two texts with the same signature ask the same thing.
func Signature(text string) string {
	set := make(map[string]struct{})
	for _, t := range Tokens(text) {
		set[t] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}

func isLetter(r rune) bool {
	return r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r > 0x7f
}

func buildStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"have", "has", "had", "do", "does", "did", "would", "could", "may", "might", "what", "which", "who", "whom", "how", "why", "when", "where", "there", "their", "they", "them", "we", "our", "you", "your", "he", "she", "his", "her", "not", "no", "all", "any", "each", "also", "more", "most", "other", "some", "only", "both",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
