package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/ingest"
	"github.com/supportpilot/supportpilot/internal/core/retry"
	"github.com/supportpilot/supportpilot/internal/models"
)

const maxUploadBytes = 32 << 20

type IngestHandler struct {
	store    core.Store
	pipeline *ingest.Pipeline
}

func NewIngestHandler(store core.Store, pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{store: store, pipeline: pipeline}
}

// StartIngestion accepts a multipart ingestion request and runs the
// pipeline to completion within the request. The route carries a long
// timeout; clients can poll status from another tab or cancel.
func (h *IngestHandler) StartIngestion(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrgID(w, r, h.store)
	if !ok {
		return
	}
	if h.pipeline == nil {
		writeError(w, http.StatusInternalServerError, "INGESTION_FAILED", "ingestion is not configured on this deployment")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid multipart request")
		return
	}

	src := ingest.Source{
		Type:                   models.SourceType(r.FormValue("source_type")),
		Title:                  strings.TrimSpace(r.FormValue("title")),
		DocumentID:             strings.TrimSpace(r.FormValue("document_id")),
		Text:                   r.FormValue("text"),
		URL:                    strings.TrimSpace(r.FormValue("url")),
		FAQQuestion:            strings.TrimSpace(r.FormValue("faq_question")),
		FAQAnswer:              strings.TrimSpace(r.FormValue("faq_answer")),
		AllowedPathPrefixes:    splitPaths(r.FormValue("allowed_paths")),
		DisallowedPathPrefixes: splitPaths(r.FormValue("disallowed_paths")),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if readErr != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "could not read uploaded file")
			return
		}
		src.FileName = filepath.Base(header.Filename)
		src.FileData = data
		if src.Title == "" {
			src.Title = src.FileName
		}
	}

	outcome, err := h.pipeline.Run(r.Context(), orgID, src)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrDocumentCreate):
			writeError(w, http.StatusInternalServerError, "DOCUMENT_CREATE_FAILED", "could not create the document record")
		case retry.IsCancellation(err):
			writeError(w, http.StatusConflict, "INGESTION_CANCELLED", err.Error())
		case retry.IsValidationMessage(err):
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		default:
			writeError(w, http.StatusBadRequest, "INGESTION_FAILED", err.Error())
		}
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"document_id": outcome.DocumentID,
		"chunk_count": outcome.ChunkCount,
		"source_type": src.Type,
		"retries":     outcome.Retries,
	})
}

// GetStatus reports the persisted ingestion progress snapshot.
func (h *IngestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
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

	payload := map[string]any{
		"document_id": doc.ID,
		"status":      doc.Status,
		"chunk_count": doc.ChunkCount,
		"ingestion":   doc.Metadata.Ingestion,
	}
	if doc.Metadata.Error != "" {
		payload["error"] = doc.Metadata.Error
	}
	if doc.Metadata.Crawl != nil {
		payload["crawl"] = doc.Metadata.Crawl
	}
	writeData(w, http.StatusOK, payload)
}

// Cancel flags a running ingestion. The pipeline notices the flag at its
// next checkpoint; an already finished document cannot be cancelled.
func (h *IngestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
	if doc.Status != models.DocumentStatusProcessing {
		writeError(w, http.StatusConflict, "INGESTION_ALREADY_FINISHED", "ingestion has already finished")
		return
	}

	now := time.Now().UTC()
	meta := doc.Metadata
	meta.Ingestion.CancelRequested = true
	meta.Ingestion.UpdatedAt = now
	if meta.CancelRequestedAt == nil {
		meta.CancelRequestedAt = &now
	}

	if err := h.store.UpdateDocument(r.Context(), orgID, id, core.DocumentUpdate{Metadata: meta}); err != nil {
		writeError(w, http.StatusInternalServerError, "CANCEL_FAILED", "could not record the cancellation request")
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"document_id":      id,
		"cancel_requested": true,
	})
}

// splitPaths parses newline- or comma-separated path rules.
func splitPaths(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
