package handlers

import (
	"encoding/json"
	"net/http"

	middleware "github.com/supportpilot/supportpilot/internal/api/middlewares"
	"github.com/supportpilot/supportpilot/internal/core"
)

// Error codes shared across handlers.
const (
	codeValidation      = "VALIDATION_ERROR"
	codeUnauthorized    = "UNAUTHORIZED"
	codeOrgRequired     = "ORG_REQUIRED"
	codeOrgLookupFailed = "ORG_LOOKUP_FAILED"
	codeInternalError   = "INTERNAL_ERROR"
)

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: message, Code: code})
}

// writeText writes a plain-text reply body; the widget client renders it
// verbatim in the assistant bubble.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeData(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dataEnvelope{Data: payload})
}

// resolveOrgID maps the authenticated user to their organization. On
// failure it writes the error response and returns ok=false.
func resolveOrgID(w http.ResponseWriter, r *http.Request, store core.Store) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return "", false
	}
	orgID, err := store.GetOrgIDForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeOrgLookupFailed, "could not resolve organization")
		return "", false
	}
	if orgID == "" {
		writeError(w, http.StatusForbidden, codeOrgRequired, "user does not belong to an organization")
		return "", false
	}
	return orgID, true
}
