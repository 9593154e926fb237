package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/rag"
)

type DocumentHandler struct {
	store core.Store
	rag   *rag.Engine
}

func NewDocumentHandler(store core.Store, engine *rag.Engine) *DocumentHandler {
	return &DocumentHandler{store: store, rag: engine}
}

// ListDocuments returns the organization's documents, newest first.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrgID(w, r, h.store)
	if !ok {
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DOCUMENT_LOOKUP_FAILED", "could not list documents")
		return
	}
	writeData(w, http.StatusOK, docs)
}

// DeleteDocument removes a document; its chunks cascade.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrgID(w, r, h.store)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	doc, err := h.store.GetDocument(r.Context(), orgID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DOCUMENT_LOOKUP_FAILED", "could not load the document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	if err := h.store.DeleteDocument(r.Context(), orgID, id); err != nil {
		writeError(w, http.StatusInternalServerError, "DOCUMENT_DELETE_FAILED", "could not delete the document")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

type kbTestRequest struct {
	Question  string  `json:"question"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

// TestKnowledgeBase runs a retrieval dry run so dashboard users can see
// which chunks a visitor question would match.
func (h *DocumentHandler) TestKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrgID(w, r, h.store)
	if !ok {
		return
	}

	var req kbTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if len(req.Question) < 3 || len(req.Question) > 1000 {
		writeError(w, http.StatusBadRequest, codeValidation, "question must be between 3 and 1000 characters")
		return
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		writeError(w, http.StatusBadRequest, codeValidation, "threshold must be between 0 and 1")
		return
	}
	if req.Limit < 0 || req.Limit > 20 {
		writeError(w, http.StatusBadRequest, codeValidation, "limit must be between 1 and 20")
		return
	}

	chunks, err := h.rag.Retrieve(r.Context(), orgID, req.Question, req.Threshold, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "retrieval failed")
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"question": req.Question,
		"chunks":   chunks,
	})
}
