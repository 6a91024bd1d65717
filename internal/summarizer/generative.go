package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/domain"
)

// MaxPromptChars bounds how much of the document is sent to the model.
const MaxPromptChars = 3000

// GenerativeSummarizer asks a generative model for a summary and falls back
// to another summarizer when the model fails or returns nothing.
type GenerativeSummarizer struct {
	model    domain.GenerativeModel
	fallback domain.Summarizer
	log      *slog.Logger
}

func NewGenerativeSummarizer(model domain.GenerativeModel, fallback domain.Summarizer, log *slog.Logger) *GenerativeSummarizer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &GenerativeSummarizer{model: model, fallback: fallback, log: log}
}

func (s *GenerativeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyInput
	}
	if s.model != nil {
		out, err := s.model.Complete(ctx, prompt(truncateRunes(text, MaxPromptChars)))
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		s.log.Warn("generative summary failed, using fallback", "err", err)
	}
	if s.fallback == nil {
		return "", fmt.Errorf("%w: no summarizer available", domain.ErrUpstream)
	}
	return s.fallback.Summarize(ctx, text)
}

func prompt(text string) string {
	return "Summarize the following document in no more than 150 words. " +
		"Cover the main topic, the key points and any conclusions.\n\n" + text
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// OrPlaceholder runs s and substitutes Placeholder for any error or empty
// result, so uploads never fail because of the summary.
func OrPlaceholder(ctx context.Context, s domain.Summarizer, text string) string {
	if s == nil {
		return Placeholder
	}
	out, err := s.Summarize(ctx, text)
	if err != nil || strings.TrimSpace(out) == "" {
		return Placeholder
	}
	return out
}
