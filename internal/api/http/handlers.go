package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain"
)

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large"})
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: multipart field \"file\" required", domain.ErrValidation))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: read upload: %v", domain.ErrUnreadableFile, err))
		return
	}
	res, err := h.svc.Upload(r.Context(), hdr.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (h *handlers) documentContext(w http.ResponseWriter, r *http.Request) {
	dc, err := h.svc.DocumentContext(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dc)
}

func (h *handlers) documentSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	summary, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_id": id, "summary": summary})
}

func (h *handlers) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	ok, err := h.svc.DeleteDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, fmt.Errorf("document %s: %w", id, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "deleted": true})
}

type questionRequest struct {
	Question            string        `json:"question"`
	DocumentID          string        `json:"document_id"`
	ConversationHistory []domain.Turn `json:"conversation_history"`
	TopK                int           `json:"top_k"`
}

func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ans, err := h.svc.Ask(r.Context(), req.Question, req.DocumentID, req.ConversationHistory)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DocumentID == "" {
		h.writeError(w, r, fmt.Errorf("%w: document_id is required", domain.ErrValidation))
		return
	}
	hits, err := h.svc.Search(r.Context(), req.Question, req.DocumentID, req.TopK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":         req.Question,
		"results":       hits,
		"total_results": len(hits),
	})
}

func (h *handlers) clarify(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Clarify(r.Context(), req.Question, req.DocumentID))
}

type quizRequest struct {
	DocumentID   string `json:"document_id"`
	NumQuestions int    `json:"num_questions"`
}

func (h *handlers) startQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	start, err := h.svc.StartQuiz(r.Context(), req.DocumentID, req.NumQuestions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	UserAnswer string `json:"user_answer"`
}

func (h *handlers) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ans := req.Answer
	if ans == "" {
		ans = req.UserAnswer
	}
	res, err := h.svc.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), req.QuestionID, ans)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) hint(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	hint, err := h.svc.Hint(r.Context(), chi.URLParam(r, "sessionID"), req.QuestionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question_id": req.QuestionID, "hint": hint})
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	p, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	qs, err := h.svc.Questions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "progress": p, "questions": qs})
}

func (h *handlers) endQuiz(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	p, err := h.svc.EndQuiz(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "final_results": p})
}
