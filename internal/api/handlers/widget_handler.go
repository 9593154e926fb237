package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/widget"
	"github.com/supportpilot/supportpilot/internal/models"
)

type WidgetHandler struct {
	store core.Store
}

func NewWidgetHandler(store core.Store) *WidgetHandler {
	return &WidgetHandler{store: store}
}

// resolveWidgetOrg loads the organization and widget row for a public
// widget route and enforces the origin allowlist. On failure the error
// response is already written.
func resolveWidgetOrg(w http.ResponseWriter, r *http.Request, store core.Store) (*models.Organization, *models.WidgetConfigRecord, bool) {
	identifier := chi.URLParam(r, "org")

	org, err := store.GetOrganizationByIdentifier(r.Context(), identifier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "could not load the organization")
		return nil, nil, false
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "ORG_NOT_FOUND", "organization not found")
		return nil, nil, false
	}

	record, err := store.GetWidgetConfig(r.Context(), org.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "could not load the widget configuration")
		return nil, nil, false
	}

	origin := r.Header.Get("Origin")
	if origin != "" {
		var domains []string
		if record != nil {
			domains = record.AllowedDomains
		}
		if !widget.OriginAllowed(origin, domains) {
			writeError(w, http.StatusForbidden, "DOMAIN_NOT_ALLOWED", "this domain is not allowed to embed the widget")
			return nil, nil, false
		}
		widget.SetCORSHeaders(w.Header(), origin)
	}

	return org, record, true
}

// GetConfig serves the public widget configuration with a short cache.
func (h *WidgetHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	org, record, ok := resolveWidgetOrg(w, r, h.store)
	if !ok {
		return
	}

	cfg := widget.Resolve(org.ID, record, org.Plan)
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeData(w, http.StatusOK, cfg)
}

// Preflight answers the CORS preflight for public widget routes.
func (h *WidgetHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" {
		widget.SetCORSHeaders(w.Header(), origin)
	}
	w.WriteHeader(http.StatusNoContent)
}
