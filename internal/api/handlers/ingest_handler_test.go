package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/supportpilot/supportpilot/internal/api/middlewares"
	"github.com/supportpilot/supportpilot/internal/core/coretest"
	"github.com/supportpilot/supportpilot/internal/core/ingest"
	"github.com/supportpilot/supportpilot/internal/core/rag"
	"github.com/supportpilot/supportpilot/internal/models"
)

func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newIngestRouter(store *coretest.MemStore, userID string) *chi.Mux {
	pipeline := ingest.NewPipeline(store, &coretest.Embedder{}, nil, "", 0)
	ih := NewIngestHandler(store, pipeline)
	dh := NewDocumentHandler(store, rag.New(store, &coretest.Embedder{}))

	r := chi.NewRouter()
	r.Use(asUser(userID))
	r.Post("/api/documents/ingest", ih.StartIngestion)
	r.Get("/api/documents/{id}/status", ih.GetStatus)
	r.Post("/api/documents/{id}/cancel", ih.Cancel)
	r.Get("/api/documents", dh.ListDocuments)
	r.Delete("/api/documents/{id}", dh.DeleteDocument)
	r.Post("/api/kb/test", dh.TestKnowledgeBase)
	return r
}

func newIngestStore() *coretest.MemStore {
	store := coretest.NewMemStore()
	store.UserOrgs["user-1"] = "org-1"
	return store
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestStartIngestionTextSource(t *testing.T) {
	store := newIngestStore()
	r := newIngestRouter(store, "user-1")

	body, contentType := multipartBody(t, map[string]string{
		"source_type": "text",
		"title":       "Refund policy",
		"text":        strings.Repeat("Refunds are available within 30 days of purchase. ", 5),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		DocumentID string `json:"document_id"`
		ChunkCount int    `json:"chunk_count"`
	}
	decodeData(t, rec, &out)
	assert.NotEmpty(t, out.DocumentID)
	assert.GreaterOrEqual(t, out.ChunkCount, 1)

	doc := store.Docs[out.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)
}

func TestStartIngestionRejectsUnknownSourceType(t *testing.T) {
	r := newIngestRouter(newIngestStore(), "user-1")

	body, contentType := multipartBody(t, map[string]string{
		"source_type": "carrier-pigeon",
		"title":       "nope",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestStartIngestionRequiresAuth(t *testing.T) {
	r := newIngestRouter(newIngestStore(), "")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/ingest", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartIngestionRequiresOrgMembership(t *testing.T) {
	store := coretest.NewMemStore() // user-1 has no org
	r := newIngestRouter(store, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/ingest", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, "ORG_REQUIRED", code)
}

func TestGetStatusNotFound(t *testing.T) {
	r := newIngestRouter(newIngestStore(), "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/nope/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", code)
}

func TestCancelFlagsProcessingDocument(t *testing.T) {
	store := newIngestStore()
	store.Docs["doc-1"] = &models.Document{ID: "doc-1", OrgID: "org-1", Status: models.DocumentStatusProcessing}
	r := newIngestRouter(store, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.Docs["doc-1"].Metadata.Ingestion.CancelRequested)
	assert.NotNil(t, store.Docs["doc-1"].Metadata.CancelRequestedAt)
}

func TestCancelFinishedDocumentConflicts(t *testing.T) {
	store := newIngestStore()
	store.Docs["doc-1"] = &models.Document{ID: "doc-1", OrgID: "org-1", Status: models.DocumentStatusReady}
	r := newIngestRouter(store, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, "INGESTION_ALREADY_FINISHED", code)
}

func TestDeleteDocument(t *testing.T) {
	store := newIngestStore()
	store.Docs["doc-1"] = &models.Document{ID: "doc-1", OrgID: "org-1", Status: models.DocumentStatusReady}
	r := newIngestRouter(store, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Docs)

	// Deleting again is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/documents/doc-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKnowledgeBaseTestValidation(t *testing.T) {
	r := newIngestRouter(newIngestStore(), "user-1")

	cases := []map[string]any{
		{"question": "hi"},
		{"question": strings.Repeat("q", 1001)},
		{"question": "how do refunds work?", "threshold": 1.5},
		{"question": "how do refunds work?", "limit": 25},
	}
	for _, c := range cases {
		raw, _ := json.Marshal(c)
		req := httptest.NewRequest(http.MethodPost, "/api/kb/test", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		code, _ := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", code)
	}
}

func TestKnowledgeBaseTestReturnsChunks(t *testing.T) {
	store := newIngestStore()
	store.SearchResults = []models.RetrievedChunk{{ID: "c1", Content: "Refund policy text.", Similarity: 0.9}}
	r := newIngestRouter(store, "user-1")

	raw, _ := json.Marshal(map[string]any{"question": "how do refunds work?"})
	req := httptest.NewRequest(http.MethodPost, "/api/kb/test", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Question string                  `json:"question"`
		Chunks   []models.RetrievedChunk `json:"chunks"`
	}
	decodeData(t, rec, &out)
	assert.Equal(t, "how do refunds work?", out.Question)
	require.Len(t, out.Chunks, 1)
	assert.Equal(t, "c1", out.Chunks[0].ID)
}
