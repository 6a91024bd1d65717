// Package concepts mines keywords and fact sentences from document text
// to seed quiz questions. The heuristics are lexical.
package concepts

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"docqa/internal/textutil"
)

const DefaultMaxKeywords = 15

// Concepts is the quiz material extracted from one document.
type Concepts struct {
	Keywords []string
	Facts    []string
}

// Extractor produces quiz material from document content.
type Extractor interface {
	Extract(content string) Concepts
}

// Heuristic ranks keywords by frequency and picks sentences that read
// like definitions or statements of purpose, technology or method.
type Heuristic struct {
	MaxKeywords int
	MaxFacts    int
}

func NewHeuristic() *Heuristic {
	return &Heuristic{MaxKeywords: DefaultMaxKeywords, MaxFacts: 10}
}

func (h *Heuristic) Extract(content string) Concepts {
	return Concepts{
		Keywords: Keywords(content, h.MaxKeywords),
		Facts:    Facts(content, h.MaxFacts),
	}
}

// Keywords returns the n most frequent alphabetic tokens longer than three
// letters that are not stop words. Ties keep first-occurrence order.
func Keywords(text string, n int) []string {
	if n <= 0 {
		n = DefaultMaxKeywords
	}
	counts := make(map[string]int)
	var order []string
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len([]rune(field)) <= 3 || textutil.IsStopword(field) {
			continue
		}
		if counts[field] == 0 {
			order = append(order, field)
		}
		counts[field]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

var factPatterns = []*regexp.Regexp{
	// definitions
	regexp.MustCompile(`(?i)\b(is|are|was|were)\s+(a|an|the)\s+\w+`),
	regexp.MustCompile(`(?i)\b(refers to|is defined as|defined as|known as|means|consists of)\b`),
	// purpose
	regexp.MustCompile(`(?i)\b(used (for|to|in)|purpose|aims? to|designed to|in order to|goal|objective)\b`),
	// technologies
	regexp.MustCompile(`(?i)\b(technolog(y|ies)|framework|library|language|platform|database|tool|protocol|algorithm)s?\b`),
	// methodologies
	regexp.MustCompile(`(?i)\b(method(ology)?|approach|process|technique|strategy|step|procedure)s?\b`),
}

// Facts returns up to n sentences matching a definition, purpose,
// technology or methodology pattern, in document order.
func Facts(text string, n int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range textutil.Sentences(text) {
		if len(textutil.Words(s)) < 4 {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		for _, re := range factPatterns {
			if re.MatchString(s) {
				seen[key] = struct{}{}
				out = append(out, s)
				break
			}
		}
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// Subject returns a short noun phrase for a fact sentence: the words before
// its first linking verb, or its first three significant words.
func Subject(sentence string) string {
	words := strings.Fields(strings.TrimRight(sentence, ".!?"))
	for i, w := range words {
		switch strings.ToLower(w) {
		case "is", "are", "was", "were", "refers", "means", "consists":
			if i > 0 && i <= 6 {
				return strings.Trim(strings.Join(words[:i], " "), ",;:")
			}
		}
	}
	var sig []string
	for _, w := range textutil.Tokens(sentence) {
		sig = append(sig, w)
		if len(sig) == 3 {
			break
		}
	}
	return strings.Join(sig, " ")
}
