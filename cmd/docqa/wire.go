package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"docqa/internal/answer"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/docstore"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	embedopenai "docqa/internal/embedding/openai"
	"docqa/internal/extract"
	genopenai "docqa/internal/generator/openai"
	"docqa/internal/metrics"
	"docqa/internal/quiz"
	"docqa/internal/quiz/redisstore"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore/chroma"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	vsqlite "docqa/internal/vectorstore/sqlite"
)

// app is the assembled service plus what must be run or closed alongside it.
type app struct {
	cfg      *config.AppConfig
	svc      *service.Service
	metrics  *metrics.Metrics
	extract  *extract.Extractor
	sessions *quiz.MemoryStore
	log      *slog.Logger
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), extract: extract.New(), log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "paragraph":
		ch = chunker.NewParagraphChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
			BatchSize:  oc.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var handle *sql.DB
	openDB := func() (*sql.DB, error) {
		if handle != nil {
			return handle, nil
		}
		h, err := db.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, h)
		handle = h
		return h, nil
	}

	var docs domain.DocumentStore
	if cfg.Storage.SQLitePath == ":memory:" {
		docs = docstore.NewMemory()
	} else {
		h, err := openDB()
		if err != nil {
			return nil, err
		}
		docs = docstore.NewSQLite(h)
	}

	var index domain.VectorIndex
	switch cfg.VectorStore.Type {
	case "memory":
		index = memory.NewStorage()
	case "sqlite":
		h, err := openDB()
		if err != nil {
			return nil, err
		}
		index = vsqlite.NewStorage(h)
	case "qdrant":
		qc := cfg.VectorStore.Qdrant
		if qc == nil {
			return nil, errors.New("qdrant config missing")
		}
		index = qdrant.NewStorage(qdrant.Config{
			URL:              qc.URL,
			APIKey:           qc.APIKey,
			CollectionPrefix: qc.CollectionPrefix,
			Timeout:          time.Duration(qc.TimeoutSecs) * time.Second,
			Dimension:        emb.Dimension(),
		})
	case "chroma":
		cc := cfg.VectorStore.Chroma
		if cc == nil {
			return nil, errors.New("chroma config missing")
		}
		st, err := chroma.NewStorage(chroma.Config{BaseURL: cc.BaseURL, CollectionPrefix: cc.CollectionPrefix})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		index = st
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var model domain.GenerativeModel
	switch cfg.Generator.Type {
	case "none":
	case "openai":
		client, err := genopenai.NewClient(genopenai.Config{
			BaseURL:           cfg.Generator.BaseURL,
			APIKeyEnv:         cfg.Generator.APIKeyEnv,
			Model:             cfg.Generator.Model,
			Timeout:           time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
			RequestsPerMinute: cfg.Generator.RequestsPerMinute,
			Temperature:       cfg.Generator.Temperature,
			MaxTokens:         cfg.Generator.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("generator init failed: %w", err)
		}
		model = client
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}

	var sum domain.Summarizer
	frequency := summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxSentences)
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = frequency
	case "generative":
		if model == nil {
			return nil, errors.New("generative summarizer needs a generator")
		}
		sum = summarizer.NewGenerativeSummarizer(model, frequency, log)
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	var sessions quiz.Store
	switch cfg.Quiz.Store {
	case "memory":
		a.sessions = quiz.NewMemoryStore(cfg.SessionTTL(), log)
		sessions = a.sessions
	case "redis":
		rc := cfg.Quiz.Redis
		if rc == nil {
			return nil, errors.New("redis config missing")
		}
		st, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
			TTL:       cfg.SessionTTL(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		sessions = st
	default:
		return nil, fmt.Errorf("unknown quiz store: %s", cfg.Quiz.Store)
	}

	a.svc = service.New(service.Deps{
		Chunker:    ch,
		Embedder:   emb,
		Index:      index,
		Documents:  docs,
		Extractor:  a.extract,
		Summarizer: sum,
		Model:      model,
		Sessions:   sessions,
	}, service.Config{
		Answer: answer.Config{
			TopK:            cfg.Answer.TopK,
			Locale:          cfg.Answer.Locale,
			MinAnswerChars:  cfg.Answer.MinAnswerChars,
			HistoryTurns:    cfg.Answer.HistoryTurns,
			UpstreamTimeout: time.Duration(cfg.Answer.UpstreamTimeoutSecs) * time.Second,
		},
		Quiz: quiz.Config{
			Format:           quiz.Format(cfg.Quiz.Grading),
			DefaultQuestions: cfg.Quiz.DefaultQuestions,
		},
	}, service.WithMetrics(a.metrics), service.WithLogger(log))

	if _, err := a.svc.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore documents: %w", err)
	}
	log.Info("docqa ready",
		"embedder", emb.Name(),
		"vector_store", cfg.VectorStore.Type,
		"generator", cfg.Generator.Type,
		"quiz_store", cfg.Quiz.Store)
	ok = true
	return a, nil
}

// runJanitor sweeps expired in-memory quiz sessions until ctx is done.
func (a *app) runJanitor(ctx context.Context) {
	if a.sessions == nil {
		return
	}
	go a.sessions.Run(ctx, time.Duration(a.cfg.Quiz.SweepIntervalSecs)*time.Second)
}
