// Package http exposes the document Q&A and quiz operations as a JSON API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"docqa/internal/domain"
	"docqa/internal/metrics"
	"docqa/internal/service"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxUploadBytes = 32 << 20
)

var DefaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

type Config struct {
	Origins        []string
	Timeout        time.Duration
	MaxUploadBytes int64
}

type handlers struct {
	svc       *service.Service
	maxUpload int64
	log       *slog.Logger
}

// NewRouter builds the API router. m may be nil, in which case /metrics
// is not mounted.
func NewRouter(svc *service.Service, m *metrics.Metrics, cfg Config, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = DefaultOrigins
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	h := &handlers{svc: svc, maxUpload: cfg.MaxUploadBytes, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.upload)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.listDocuments)
			r.Get("/{docID}/context", h.documentContext)
			r.Get("/{docID}/summary", h.documentSummary)
			r.Delete("/{docID}", h.deleteDocument)
		})
		r.Route("/qa", func(r chi.Router) {
			r.Post("/ask", h.ask)
			r.Post("/search", h.search)
			r.Post("/clarify", h.clarify)
		})
		r.Route("/quiz", func(r chi.Router) {
			r.Post("/", h.startQuiz)
			r.Get("/{sessionID}", h.progress)
			r.Delete("/{sessionID}", h.endQuiz)
			r.Post("/{sessionID}/answer", h.submitAnswer)
			r.Post("/{sessionID}/hint", h.hint)
		})
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrUnreadableFile):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= 500 {
		h.log.Error("request failed", "path", r.URL.Path, "err", err, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
