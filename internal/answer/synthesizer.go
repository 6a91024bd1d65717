// Package answer turns retrieved passages into an answer with a
// justification, source snippets and a heuristic confidence.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/metrics"
	"docqa/internal/textutil"
)

// Heuristic confidence levels. They are not calibrated probabilities.
const (
	ConfidenceChitChat    = 0.9
	ConfidenceGeneral     = 0.7
	ConfidenceSynthesized = 0.85
	ConfidenceWeak        = 0.3
	ConfidenceNone        = 0.1
)

const (
	DefaultTopK           = 8
	DefaultMinAnswerChars = 20
	DefaultHistoryTurns   = 3
	DefaultTimeout        = 30 * time.Second
	maxSnippets           = 3
	extractiveSentences   = 3
)

// Retriever is the lookup the synthesizer answers from.
type Retriever interface {
	Retrieve(ctx context.Context, docID, query string, topK int) ([]domain.RetrievalHit, error)
}

type Config struct {
	TopK            int
	Locale          string
	MinAnswerChars  int
	HistoryTurns    int
	UpstreamTimeout time.Duration
}

type Synthesizer struct {
	retriever Retriever
	model     domain.GenerativeModel
	templates Templates
	cfg       Config
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type Option func(*Synthesizer)

func WithTemplates(t Templates) Option { return func(s *Synthesizer) { s.templates = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Synthesizer) { s.metrics = m } }

func WithLogger(log *slog.Logger) Option { return func(s *Synthesizer) { s.log = log } }

// New builds a synthesizer. model may be nil, in which case answers are
// extracted from the retrieved passages.
func New(retriever Retriever, model domain.GenerativeModel, cfg Config, opts ...Option) *Synthesizer {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinAnswerChars <= 0 {
		cfg.MinAnswerChars = DefaultMinAnswerChars
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultTimeout
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	s := &Synthesizer{
		retriever: retriever,
		model:     model,
		templates: DefaultTemplates(),
		cfg:       cfg,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer never fails: upstream errors and timeouts become low-confidence
// answers. Conversational questions are answered before any retrieval.
func (s *Synthesizer) Answer(ctx context.Context, question, docID string, history []domain.Turn) domain.Answer {
	locale := DetectLocale(question, s.cfg.Locale)
	if intent, ok := ChitChatIntent(question); ok {
		s.metrics.Ask(metrics.OutcomeChitChat)
		return domain.Answer{
			Answer:         s.templates.Text(locale, intent),
			Justification:  "Conversational reply",
			SourceSnippets: []string{},
			Confidence:     ConfidenceChitChat,
		}
	}

	docID = strings.TrimSpace(docID)
	if docID == "" {
		return s.withoutDocument(ctx, question, locale)
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	hits, err := s.retriever.Retrieve(rctx, docID, question, s.cfg.TopK)
	cancel()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.withoutDocument(ctx, question, locale)
	case err != nil:
		s.log.Warn("retrieval failed", "doc_id", docID, "err", err)
		s.metrics.Ask(metrics.OutcomeFallback)
		return domain.Answer{
			Answer:         s.templates.Text(locale, IntentDegraded),
			Justification:  "The retrieval service did not respond",
			SourceSnippets: []string{},
			Confidence:     ConfidenceNone,
		}
	case len(hits) == 0:
		s.metrics.Ask(metrics.OutcomeNotFound)
		return domain.Answer{
			Answer:         s.templates.Text(locale, IntentNotFound),
			Justification:  "No relevant passages were found in the document",
			SourceSnippets: []string{},
			Confidence:     ConfidenceNone,
		}
	}
	return s.fromHits(ctx, question, hits, history, locale)
}

func (s *Synthesizer) fromHits(ctx context.Context, question string, hits []domain.RetrievalHit, history []domain.Turn, locale string) domain.Answer {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	passages := strings.Join(texts, "\n\n")

	generated := ""
	if s.model != nil {
		generated = strings.TrimSpace(s.complete(ctx, documentPrompt(question, passages, lastTurns(history, s.cfg.HistoryTurns))))
	}
	extracted := ""
	if len(generated) < s.cfg.MinAnswerChars {
		extracted = Extract(question, passages)
	}

	text, outcome, confidence := "", "", ConfidenceSynthesized
	switch {
	case len(generated) >= s.cfg.MinAnswerChars:
		text, outcome = generated, metrics.OutcomeGenerative
	case len(extracted) >= s.cfg.MinAnswerChars:
		text, outcome = extracted, metrics.OutcomeExtractive
	case generated != "":
		text, outcome = generated, metrics.OutcomeGenerative
	case extracted != "":
		text, outcome = extracted, metrics.OutcomeExtractive
	default:
		text, outcome, confidence = s.templates.Text(locale, IntentCouldNotAnswer), metrics.OutcomeFallback, ConfidenceWeak
	}
	s.metrics.Ask(outcome)

	return domain.Answer{
		Answer:         text,
		Justification:  fmt.Sprintf("Based on %d relevant passages from the document", len(hits)),
		SourceSnippets: texts[:min(maxSnippets, len(texts))],
		Confidence:     confidence,
	}
}

func (s *Synthesizer) withoutDocument(ctx context.Context, question, locale string) domain.Answer {
	if mentionsDocument(question) {
		s.metrics.Ask(metrics.OutcomeNoDocument)
		return domain.Answer{
			Answer:         s.templates.Text(locale, IntentUploadPrompt),
			Justification:  "No document is available for this question",
			SourceSnippets: []string{},
			Confidence:     ConfidenceNone,
		}
	}
	s.metrics.Ask(metrics.OutcomeChitChat)
	text := ""
	if s.model != nil {
		text = strings.TrimSpace(s.complete(ctx, generalPrompt(question)))
	}
	if text == "" {
		text = s.templates.Text(locale, IntentGeneral)
	}
	return domain.Answer{
		Answer:         text,
		Justification:  "General response without document context",
		SourceSnippets: []string{},
		Confidence:     ConfidenceGeneral,
	}
}

// complete calls the generative model under the upstream timeout and
// returns "" on failure.
func (s *Synthesizer) complete(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()
	out, err := s.model.Complete(ctx, prompt)
	if err != nil {
		s.metrics.UpstreamFailure("generator")
		s.log.Warn("generation failed, using extractive answer", "err", err)
		return ""
	}
	return out
}

func lastTurns(history []domain.Turn, n int) []domain.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func documentPrompt(question, passages string, history []domain.Turn) string {
	var conv strings.Builder
	for _, t := range history {
		fmt.Fprintf(&conv, "Q: %s\nA: %s\n\n", t.Question, t.Answer)
	}
	return fmt.Sprintf(`Based on the following document context, answer the question.

Previous conversation:
%s
Document context:
%s

Current question: %s

Please provide a clear answer with justification.`, conv.String(), passages, question)
}

func generalPrompt(question string) string {
	return "You are a helpful assistant for a document question-answering tool. " +
		"Answer briefly. If the question needs a document, suggest uploading one.\n\nQuestion: " + question
}

var signalKeywords = map[string]struct{}{
	"important": {}, "key": {}, "main": {}, "result": {}, "results": {}, "objective": {},
	"objectives": {}, "goal": {}, "purpose": {}, "conclusion": {}, "finding": {},
	"findings": {}, "significant": {}, "defined": {}, "means": {}, "used": {},
}

const (
	keywordBonus  = 0.5
	shortPenalty  = 1.0
	longPenalty   = 0.5
	shortSentence = 4
	longSentence  = 40
)

// Extract returns the best sentences of passages for question joined by
// spaces, or "" when no sentence shares a word with the question.
func Extract(question, passages string) string {
	qset := textutil.SignificantSet(question)
	if len(qset) == 0 {
		for _, t := range textutil.Tokens(question) {
			qset[t] = struct{}{}
		}
	}
	type scored struct {
		idx   int
		score float64
	}
	sentences := textutil.Sentences(passages)
	var cands []scored
	seen := make(map[string]struct{}, len(sentences))
	for i, sent := range sentences {
		key := strings.ToLower(sent)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		words := textutil.Words(sent)
		overlap := 0
		score := 0.0
		for w := range textutil.TokenSet(sent) {
			if _, ok := qset[w]; ok {
				overlap++
			}
			if _, ok := signalKeywords[w]; ok {
				score += keywordBonus
			}
		}
		if overlap == 0 {
			continue
		}
		score += float64(overlap)
		switch {
		case len(words) < shortSentence:
			score -= shortPenalty
		case len(words) > longSentence:
			score -= longPenalty
		}
		cands = append(cands, scored{i, score})
	}
	if len(cands) == 0 {
		return ""
	}
	slices.SortStableFunc(cands, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	cands = cands[:min(extractiveSentences, len(cands))]
	slices.SortFunc(cands, func(a, b scored) int { return a.idx - b.idx })
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = sentences[c.idx]
	}
	return strings.Join(out, " ")
}
