package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/concepts"
	"docqa/internal/domain"
	"docqa/internal/textutil"
)

const (
	DefaultQuestions   = 3
	MaxQuestions       = 20
	DefaultMaxAttempts = 5

	maxOptionLen   = 140
	minOptionLen   = 45
	snippetLen     = 120
	explanationLen = 240
	overlapLimit   = 0.5
)

// Answerer produces the correct answer for a generated question.
type Answerer interface {
	Answer(ctx context.Context, question, docID string, history []domain.Turn) domain.Answer
}

// Retriever supplies the weakest passage used as a distractor.
type Retriever interface {
	Retrieve(ctx context.Context, docID, query string, topK int) ([]domain.RetrievalHit, error)
}

// ContentSource returns a document's full text or domain.ErrNotFound.
type ContentSource interface {
	Content(ctx context.Context, docID string) (string, error)
}

var genericDistractors = []string{
	"This detail is not covered in the document.",
	"The document discusses a different aspect.",
	"No specific information is given on this point.",
	"This statement contradicts the document's conclusion.",
	"The document presents this only as an unproven hypothesis.",
	"This topic is mentioned only in passing without any explanation.",
	"The document describes the opposite relationship.",
	"This applies to an unrelated system, not the one described.",
}

var keywordTemplates = []string{
	"According to the document, what best describes %s?",
	"What does the document say about %s?",
	"Which statement about %s is supported by the document?",
	"How does the document explain %s?",
}

var factTemplates = []string{
	"According to the document, what is true about %s?",
	"Which statement best characterizes %s according to the document?",
}

// fillers pad short options. Their words are ignored by Overlap.
var fillers = []string{
	" as stated in the document",
	" for the purposes described",
	" according to the text",
	" in the material provided",
	" within this context",
	" in the given setting",
	" in practice",
	" overall",
}

var fillerWords = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, f := range fillers {
		for _, t := range textutil.Tokens(f) {
			m[t] = struct{}{}
		}
	}
	return m
}()

type Config struct {
	Format Format
	// DefaultQuestions is used when a caller asks for zero questions.
	DefaultQuestions int
	MaxAttempts      int
}

type Generator struct {
	answerer  Answerer
	retriever Retriever
	content   ContentSource
	extractor concepts.Extractor
	cache     *ConceptCache
	cfg       Config
	log       *slog.Logger

	rmu sync.Mutex
	rnd *rand.Rand
}

type Option func(*Generator)

func WithExtractor(e concepts.Extractor) Option { return func(g *Generator) { g.extractor = e } }

func WithLogger(log *slog.Logger) Option { return func(g *Generator) { g.log = log } }

// WithSeed makes option shuffling and concept choice reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func NewGenerator(answerer Answerer, retriever Retriever, content ContentSource, cfg Config, opts ...Option) *Generator {
	if cfg.Format == "" {
		cfg.Format = FormatMCQ
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DefaultQuestions <= 0 || cfg.DefaultQuestions > MaxQuestions {
		cfg.DefaultQuestions = DefaultQuestions
	}
	g := &Generator{
		answerer:  answerer,
		retriever: retriever,
		content:   content,
		extractor: concepts.NewHeuristic(),
		cfg:       cfg,
		log:       slog.New(slog.DiscardHandler),
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cache = NewConceptCache(g.extractor)
	return g
}

// Forget drops cached concepts for a deleted document.
func (g *Generator) Forget(docID string) { g.cache.Forget(docID) }

type seed struct {
	concept string
	fact    string
}

// Generate builds a session of n questions for docID. Questions within the
// session have distinct signatures.
func (g *Generator) Generate(ctx context.Context, docID string, n int) (Session, error) {
	if n == 0 {
		n = g.cfg.DefaultQuestions
	}
	if n < 0 || n > MaxQuestions {
		return Session{}, fmt.Errorf("%w: num_questions must be between 1 and %d", domain.ErrValidation, MaxQuestions)
	}
	c, err := g.cache.Get(ctx, docID, g.content)
	if err != nil {
		return Session{}, err
	}

	seeds := g.seeds(c)
	next := 0
	pick := func() seed {
		if len(seeds) == 0 {
			return seed{concept: "the given document"}
		}
		if next >= len(seeds) {
			// pool exhausted: draw with replacement
			return seeds[g.intN(len(seeds))]
		}
		next++
		return seeds[next-1]
	}

	sess := Session{
		ID:        uuid.NewString(),
		DocID:     docID,
		Format:    g.cfg.Format,
		Total:     n,
		Scores:    []int{},
		CreatedAt: time.Now(),
	}
	var grounding []string
	used := make(map[string]struct{}, n)
	for i := 1; i <= n; i++ {
		var q Question
		ok := false
		for attempt := 0; attempt < g.cfg.MaxAttempts && !ok; attempt++ {
			s := pick()
			text := g.questionText(s)
			if _, dup := used[textutil.Signature(text)]; dup {
				continue
			}
			q, ok = g.build(ctx, docID, text, s, c)
		}
		if !ok {
			if grounding == nil {
				if grounding, err = g.groundingFacts(ctx, docID, c); err != nil {
					return Session{}, err
				}
			}
			text := fallbackQuestion(i, used)
			q, _ = g.build(ctx, docID, text, seed{concept: "the document", fact: grounding[(i-1)%len(grounding)]}, c)
			g.log.Debug("fallback question", "doc_id", docID, "index", i)
		}
		q.ID = fmt.Sprintf("q_%d", i)
		q.Signature = textutil.Signature(q.Text)
		used[q.Signature] = struct{}{}
		sess.Questions = append(sess.Questions, q)
	}
	return sess, nil
}

func (g *Generator) seeds(c concepts.Concepts) []seed {
	seeds := make([]seed, 0, len(c.Keywords)+len(c.Facts))
	for _, k := range c.Keywords {
		seeds = append(seeds, seed{concept: k})
	}
	for _, f := range c.Facts {
		if subj := concepts.Subject(f); subj != "" {
			seeds = append(seeds, seed{concept: subj, fact: f})
		}
	}
	g.shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })
	return seeds
}

func (g *Generator) questionText(s seed) string {
	templates := keywordTemplates
	if s.fact != "" {
		templates = factTemplates
	}
	return fmt.Sprintf(templates[g.intN(len(templates))], s.concept)
}

// build answers the question and assembles four balanced options. It
// reports false when the answer is unreliable and no fact backs the seed.
func (g *Generator) build(ctx context.Context, docID, text string, s seed, c concepts.Concepts) (Question, bool) {
	ans := g.answerer.Answer(ctx, text, docID, nil)
	correct := strings.TrimSpace(ans.Answer)
	explanation := s.fact
	if ans.Confidence < 0.5 || correct == "" {
		correct = factFor(s, c)
		if correct == "" {
			return Question{}, false
		}
	}
	correct = firstSentence(correct)
	if explanation == "" && len(ans.SourceSnippets) > 0 {
		explanation = truncate(ans.SourceSnippets[0], explanationLen)
	}
	if explanation == "" {
		explanation = ans.Justification
	}

	raw := append([]string{correct}, g.distractors(ctx, docID, text, correct)...)
	options := balanceOptions(raw)
	for i := 1; i < len(options); i++ {
		// cutting a distractor can raise its share of shared words
		if Overlap(options[i], options[0]) >= overlapLimit {
			raw[i] = fmt.Sprintf("None of the other statements applies, variant %s.", numberWord(i))
			options = balanceOptions(raw)
		}
	}
	order := []int{0, 1, 2, 3}
	g.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	q := Question{
		Text:          text,
		Options:       make(map[string]string, len(Letters)),
		Answer:        correct,
		Justification: ans.Justification,
		Explanation:   explanation,
	}
	for slot, idx := range order {
		q.Options[Letters[slot]] = options[idx]
		if idx == 0 {
			q.CorrectLetter = Letters[slot]
		}
	}
	return q, true
}

// groundingFacts returns statements a fallback question can be answered
// with: the extracted facts, else the document's sentences.
func (g *Generator) groundingFacts(ctx context.Context, docID string, c concepts.Concepts) ([]string, error) {
	if len(c.Facts) > 0 {
		return c.Facts, nil
	}
	content, err := g.content.Content(ctx, docID)
	if err != nil {
		return nil, err
	}
	if sents := textutil.Sentences(content); len(sents) > 0 {
		return sents, nil
	}
	if content = strings.Join(strings.Fields(content), " "); content != "" {
		return []string{truncate(content, maxOptionLen)}, nil
	}
	return nil, fmt.Errorf("document %s: %w", docID, domain.ErrEmptyInput)
}

// distractors returns three options that share less than half of their
// significant words with correct and differ from each other.
func (g *Generator) distractors(ctx context.Context, docID, question, correct string) []string {
	var cands []string
	if g.retriever != nil {
		hits, err := g.retriever.Retrieve(ctx, docID, question, 3)
		if err == nil && len(hits) > 0 {
			if snip := snippet(hits[len(hits)-1].Text); snip != "" {
				cands = append(cands, snip)
			}
		}
	}
	pool := make([]string, len(genericDistractors))
	copy(pool, genericDistractors)
	g.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	cands = append(cands, pool...)

	seen := map[string]struct{}{strings.ToLower(correct): {}}
	out := make([]string, 0, 3)
	for _, cand := range cands {
		b := strings.Join(strings.Fields(cand), " ")
		key := strings.ToLower(b)
		if _, dup := seen[key]; dup {
			continue
		}
		if Overlap(b, correct) >= overlapLimit {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
		if len(out) == 3 {
			return out
		}
	}
	for i := 1; len(out) < 3; i++ {
		b := fmt.Sprintf("None of the other statements applies, variant %s.", numberWord(i))
		if _, dup := seen[strings.ToLower(b)]; dup {
			continue
		}
		if Overlap(b, correct) >= overlapLimit && i < 50 {
			continue
		}
		seen[strings.ToLower(b)] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Overlap is the share of distractor's significant words that also occur
// in correct. Filler words are ignored.
func Overlap(distractor, correct string) float64 {
	d := significant(distractor)
	if len(d) == 0 {
		return 0
	}
	c := significant(correct)
	shared := 0
	for w := range d {
		if _, ok := c[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(d))
}

func significant(s string) map[string]struct{} {
	set := textutil.SignificantSet(s)
	for w := range fillerWords {
		delete(set, w)
	}
	return set
}

// balanceOptions brings a question's options to a shared length. The
// target is the median length clamped to [minOptionLen, maxOptionLen].
// Options past the tolerance band are cut to the target and shorter ones
// are padded towards it. When one option ends in an ellipsis all of them do.
func balanceOptions(opts []string) []string {
	out := make([]string, len(opts))
	lens := make([]int, len(opts))
	for i, o := range opts {
		out[i] = strings.Join(strings.Fields(o), " ")
		lens[i] = len(out[i])
	}
	if len(out) == 0 {
		return out
	}
	slices.Sort(lens)
	target := lens[len(lens)/2]
	if len(lens)%2 == 0 {
		target = (lens[len(lens)/2-1] + target) / 2
	}
	target = min(max(target, minOptionLen), maxOptionLen)
	hi := min(target+max(target/10, 4), maxOptionLen)

	ellipsis := false
	for i, o := range out {
		switch {
		case len(o) > hi:
			out[i] = truncate(o, target)
		case len(o) < target:
			out[i] = pad(o, target, hi)
		}
		ellipsis = ellipsis || strings.HasSuffix(out[i], "...")
	}
	if ellipsis {
		for i, o := range out {
			if !strings.HasSuffix(o, "...") {
				out[i] = strings.TrimRight(o, ".!?;:, ") + "..."
			}
		}
	}
	return out
}

// pad appends unused fillers while doing so moves s closer to target
// without passing hi.
func pad(s string, target, hi int) string {
	used := make([]bool, len(fillers))
	for {
		base := strings.TrimRight(s, ".")
		pick, best := -1, abs(len(s)-target)
		for i, f := range fillers {
			n := len(base) + len(f) + 1
			if used[i] || n > hi {
				continue
			}
			if d := abs(n - target); d < best {
				pick, best = i, d
			}
		}
		if pick < 0 {
			return s
		}
		used[pick] = true
		s = base + fillers[pick] + "."
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// firstSentence keeps the leading sentence of s.
func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if sents := textutil.Sentences(s); len(sents) > 0 {
		return sents[0]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
	}
	return strings.TrimRight(s[:cut], " ,;:.") + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLen {
		text = truncate(text, snippetLen)
	}
	if sents := textutil.Sentences(text); len(sents) > 0 {
		return sents[0]
	}
	return text
}

// factFor returns the seed's fact or the first fact mentioning its concept.
func factFor(s seed, c concepts.Concepts) string {
	if s.fact != "" {
		return s.fact
	}
	for _, f := range c.Facts {
		if strings.Contains(strings.ToLower(f), strings.ToLower(s.concept)) {
			return f
		}
	}
	return ""
}

func fallbackQuestion(i int, used map[string]struct{}) string {
	for k := i; ; k++ {
		text := fmt.Sprintf("Which statement matches part %s of the document?", numberWord(k))
		if _, dup := used[textutil.Signature(text)]; !dup {
			return text
		}
	}
}

var (
	units = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
)

// numberWord spells n in English so it survives tokenization.
func numberWord(n int) string {
	switch {
	case n < 20:
		return units[n]
	case n < 100:
		if n%10 == 0 {
			return tens[n/10]
		}
		return tens[n/10] + "-" + units[n%10]
	case n%100 == 0:
		return numberWord(n/100) + " hundred"
	default:
		return numberWord(n/100) + " hundred " + numberWord(n%100)
	}
}

func (g *Generator) intN(n int) int {
	g.rmu.Lock()
	defer g.rmu.Unlock()
	return g.rnd.IntN(n)
}

func (g *Generator) shuffle(n int, swap func(i, j int)) {
	g.rmu.Lock()
	defer g.rmu.Unlock()
	g.rnd.Shuffle(n, swap)
}
