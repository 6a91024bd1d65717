// Package service wires ingestion, retrieval, answering and quizzes into
// the operations exposed over HTTP, MCP and the terminal client.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"docqa/internal/answer"
	"docqa/internal/domain"
	"docqa/internal/metrics"
	"docqa/internal/quiz"
	"docqa/internal/retriever"
	"docqa/internal/summarizer"
)

const (
	DefaultSearchTopK = 5
	MaxSearchTopK     = 50
	previewChars      = 500
)

// Deps are the collaborators the service is assembled from. Model may be
// nil; Summarizer may be nil, in which case summaries use the placeholder.
type Deps struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Index      domain.VectorIndex
	Documents  domain.DocumentStore
	Extractor  domain.TextExtractor
	Summarizer domain.Summarizer
	Model      domain.GenerativeModel
	Sessions   quiz.Store
}

type Config struct {
	Answer answer.Config
	Quiz   quiz.Config
}

type Service struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	index      domain.VectorIndex
	docs       domain.DocumentStore
	extractor  domain.TextExtractor
	summarizer domain.Summarizer
	sessions   quiz.Store

	retriever *retriever.Retriever
	answerer  *answer.Synthesizer
	quizzes   *quiz.Generator

	locks   *keyedMutex
	count   atomic.Int64
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(log *slog.Logger) Option { return func(s *Service) { s.log = log } }

func New(deps Deps, cfg Config, opts ...Option) *Service {
	s := &Service{
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		index:      deps.Index,
		docs:       deps.Documents,
		extractor:  deps.Extractor,
		summarizer: deps.Summarizer,
		sessions:   deps.Sessions,
		locks:      newKeyedMutex(),
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retriever = retriever.New(s.embedder, s.index,
		retriever.WithChunkSource(s),
		retriever.WithMetrics(s.metrics),
		retriever.WithLogger(s.log))
	s.answerer = answer.New(s.retriever, deps.Model, cfg.Answer,
		answer.WithMetrics(s.metrics),
		answer.WithLogger(s.log))
	s.quizzes = quiz.NewGenerator(s.answerer, s.retriever, s, cfg.Quiz,
		quiz.WithLogger(s.log))
	return s
}

// Content returns the stored text of a document.
func (s *Service) Content(ctx context.Context, docID string) (string, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// Chunks re-derives a document's chunks. Chunking is deterministic, so the
// result matches what was indexed.
func (s *Service) Chunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return s.chunker.Chunk(doc), nil
}

type collectionNamer interface {
	CollectionName(docID string) string
}

func (s *Service) indexRef(docID string) string {
	if n, ok := s.index.(collectionNamer); ok {
		return n.CollectionName(docID)
	}
	return "doc_" + strings.ReplaceAll(docID, "-", "_")
}

// RegisterDocument chunks, embeds and indexes content and returns the new
// document id.
func (s *Service) RegisterDocument(ctx context.Context, filename, content string) (string, error) {
	doc, err := s.register(ctx, filename, content, "")
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *Service) register(ctx context.Context, filename, content, summary string) (domain.Document, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Document{}, fmt.Errorf("%w: document has no text", domain.ErrEmptyInput)
	}
	doc := domain.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		Content:   content,
		Summary:   summary,
		CreatedAt: s.now().UTC(),
	}
	doc.IndexRef = s.indexRef(doc.ID)

	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	n, err := s.embedAndIndex(ctx, doc)
	if err != nil {
		return domain.Document{}, err
	}
	doc.ChunkCount = n
	// The document becomes visible only once its collection is complete.
	if err := s.docs.Save(ctx, doc); err != nil {
		if _, derr := s.index.Delete(ctx, doc.ID); derr != nil {
			s.log.Warn("rollback index failed", "doc_id", doc.ID, "err", derr)
		}
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	s.metrics.SetDocuments(int(s.count.Add(1)))
	s.log.Info("document registered", "doc_id", doc.ID, "filename", filename, "chunks", n)
	return doc, nil
}

// embedAndIndex embeds the document's chunks and replaces its collection.
func (s *Service) embedAndIndex(ctx context.Context, doc domain.Document) (int, error) {
	chunks := s.chunker.Chunk(doc)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.metrics.UpstreamFailure("embedder")
		if !errors.Is(err, domain.ErrUpstream) {
			err = fmt.Errorf("%w: embed chunks: %v", domain.ErrUpstream, err)
		}
		return 0, err
	}
	if err := s.index.Add(ctx, doc.ID, chunks, vecs); err != nil {
		return 0, fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	return len(chunks), nil
}

type UploadResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	Summary       string `json:"summary"`
	ContentLength int    `json:"content_length"`
}

// Upload extracts text from a file, summarizes and registers it.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (UploadResult, error) {
	if len(data) == 0 {
		return UploadResult{}, fmt.Errorf("%w: empty file", domain.ErrEmptyInput)
	}
	if !s.extractor.Supports(filename) {
		return UploadResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filename)
	}
	text, err := s.extractor.Extract(data, filename)
	if err != nil {
		return UploadResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return UploadResult{}, fmt.Errorf("%w: no text could be extracted from %s", domain.ErrUnreadableFile, filename)
	}
	summary := summarizer.OrPlaceholder(ctx, s.summarizer, text)
	doc, err := s.register(ctx, filename, text, summary)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		Summary:       summary,
		ContentLength: len(text),
	}, nil
}

// Ask answers a question, optionally grounded in a document. Upstream
// failures are folded into a low-confidence answer.
func (s *Service) Ask(ctx context.Context, question, docID string, history []domain.Turn) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, fmt.Errorf("%w: question is blank", domain.ErrEmptyInput)
	}
	return s.answerer.Answer(ctx, question, strings.TrimSpace(docID), history), nil
}

type SearchHit struct {
	domain.RetrievalHit
	RelevanceCategory string `json:"relevance_category"`
}

func relevanceCategory(score float64) string {
	switch {
	case score > 0.8:
		return "high"
	case score > 0.5:
		return "medium"
	default:
		return "low"
	}
}

func (s *Service) Search(ctx context.Context, query, docID string, topK int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is blank", domain.ErrEmptyInput)
	}
	if topK == 0 {
		topK = DefaultSearchTopK
	}
	if topK < 0 || topK > MaxSearchTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", domain.ErrValidation, MaxSearchTopK)
	}
	hits, err := s.retriever.Retrieve(ctx, strings.TrimSpace(docID), query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{RetrievalHit: h, RelevanceCategory: relevanceCategory(h.Score)}
	}
	return out, nil
}

type Clarification struct {
	Suggestions      []string `json:"suggestions"`
	OriginalQuestion string   `json:"original_question"`
	Context          string   `json:"context"`
}

// Clarify proposes follow-up phrasings for a question about a known
// document. Unknown or absent documents get no suggestions.
func (s *Service) Clarify(ctx context.Context, question, docID string) Clarification {
	out := Clarification{Suggestions: []string{}, OriginalQuestion: question, Context: "general_chat"}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return out
	}
	if _, err := s.docs.Get(ctx, docID); err != nil {
		out.Context = "no_document"
		return out
	}
	out.Context = "document_available"
	out.Suggestions = []string{
		fmt.Sprintf("Could you be more specific about '%s'?", question),
		fmt.Sprintf("Are you asking about a particular aspect of '%s'?", question),
		fmt.Sprintf("Would you like me to explain '%s' in more detail?", question),
	}
	return out
}

type DocumentContext struct {
	Filename         string   `json:"filename"`
	WordCount        int      `json:"word_count"`
	CharacterCount   int      `json:"character_count"`
	Chunks           int      `json:"chunks"`
	Preview          string   `json:"preview"`
	SupportedQueries []string `json:"supported_queries"`
}

var supportedQueries = []string{
	"What technologies are mentioned?",
	"What are the main points?",
	"Explain the key concepts",
	"Summarize the document",
	"What methodologies are used?",
}

func (s *Service) DocumentContext(ctx context.Context, docID string) (DocumentContext, error) {
	doc, err := s.docs.Get(ctx, strings.TrimSpace(docID))
	if err != nil {
		return DocumentContext{}, err
	}
	preview := doc.Content
	if r := []rune(preview); len(r) > previewChars {
		preview = string(r[:previewChars]) + "..."
	}
	return DocumentContext{
		Filename:         doc.Filename,
		WordCount:        len(strings.Fields(doc.Content)),
		CharacterCount:   len([]rune(doc.Content)),
		Chunks:           doc.ChunkCount,
		Preview:          preview,
		SupportedQueries: supportedQueries,
	}, nil
}

type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		out[i] = DocumentInfo{ID: d.ID, Filename: d.Filename, Chunks: d.ChunkCount, CreatedAt: d.CreatedAt}
	}
	return out, nil
}

// DeleteDocument drops the metadata first so readers stop seeing the
// document, then its collection. Missing documents report false.
func (s *Service) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	docID = strings.TrimSpace(docID)
	unlock := s.locks.Lock(docID)
	defer unlock()

	ok, err := s.docs.Delete(ctx, docID)
	if err != nil {
		return false, err
	}
	if _, err := s.index.Delete(ctx, docID); err != nil {
		s.log.Warn("delete collection failed", "doc_id", docID, "err", err)
	}
	s.quizzes.Forget(docID)
	if ok {
		s.metrics.SetDocuments(int(s.count.Add(-1)))
		s.log.Info("document deleted", "doc_id", docID)
	}
	return ok, nil
}

// Summary regenerates and stores the summary of a document.
func (s *Service) Summary(ctx context.Context, docID string) (string, error) {
	docID = strings.TrimSpace(docID)
	unlock := s.locks.Lock(docID)
	defer unlock()

	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	doc.Summary = summarizer.OrPlaceholder(ctx, s.summarizer, doc.Content)
	if err := s.docs.Save(ctx, doc); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	return doc.Summary, nil
}

// Restore loads persisted documents and re-indexes any whose collection is
// missing, e.g. after a restart with the in-memory index.
func (s *Service) Restore(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	reindexed := 0
	for _, doc := range docs {
		has, err := s.index.Has(ctx, doc.ID)
		if err != nil {
			return reindexed, fmt.Errorf("check collection %s: %w", doc.ID, err)
		}
		if has {
			continue
		}
		unlock := s.locks.Lock(doc.ID)
		n, err := s.embedAndIndex(ctx, doc)
		if err == nil && n != doc.ChunkCount {
			doc.ChunkCount = n
			err = s.docs.Save(ctx, doc)
		}
		unlock()
		if err != nil {
			return reindexed, fmt.Errorf("restore %s: %w", doc.ID, err)
		}
		reindexed++
	}
	s.count.Store(int64(len(docs)))
	s.metrics.SetDocuments(len(docs))
	s.log.Info("documents restored", "total", len(docs), "reindexed", reindexed)
	return reindexed, nil
}

type QuizStart struct {
	SessionID string                `json:"session_id"`
	DocID     string                `json:"document_id"`
	Questions []quiz.PublicQuestion `json:"questions"`
}

func (s *Service) StartQuiz(ctx context.Context, docID string, n int) (QuizStart, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return QuizStart{}, fmt.Errorf("%w: document_id is required", domain.ErrValidation)
	}
	sess, err := s.quizzes.Generate(ctx, docID, n)
	if err != nil {
		return QuizStart{}, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return QuizStart{}, fmt.Errorf("store session: %w", err)
	}
	s.metrics.QuizStarted()
	s.log.Info("quiz started", "session_id", sess.ID, "doc_id", docID, "questions", len(sess.Questions))

	out := QuizStart{SessionID: sess.ID, DocID: docID, Questions: make([]quiz.PublicQuestion, len(sess.Questions))}
	for i, q := range sess.Questions {
		out.Questions[i] = q.Public(sess.Format)
	}
	return out, nil
}

func (s *Service) SubmitAnswer(ctx context.Context, sessionID, questionID, ans string) (quiz.Result, error) {
	res, err := s.sessions.Evaluate(ctx, sessionID, questionID, ans)
	if err != nil {
		return quiz.Result{}, err
	}
	s.metrics.Graded(res.Correct)
	return res, nil
}

func (s *Service) Progress(ctx context.Context, sessionID string) (quiz.Progress, error) {
	return s.sessions.Progress(ctx, sessionID)
}

func (s *Service) Hint(ctx context.Context, sessionID, questionID string) (string, error) {
	return s.sessions.Hint(ctx, sessionID, questionID)
}

func (s *Service) Questions(ctx context.Context, sessionID string) ([]quiz.PublicQuestion, error) {
	return s.sessions.Questions(ctx, sessionID)
}

func (s *Service) EndQuiz(ctx context.Context, sessionID string) (quiz.Progress, error) {
	p, err := s.sessions.End(ctx, sessionID)
	if err != nil {
		return quiz.Progress{}, err
	}
	s.log.Info("quiz ended", "session_id", sessionID, "answered", p.Answered, "average", p.AverageScore)
	return p, nil
}
