// Package widget assembles the public widget configuration and enforces
// the origin allowlist for embedded deployments.
package widget

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/supportpilot/supportpilot/internal/models"
)

// Defaults applied when a widget config row is missing or sparse.
const (
	DefaultDisplayName    = "Support Assistant"
	DefaultWelcomeMessage = "Hi! How can I help you today?"
	DefaultPrimaryColor   = "#2563eb"
	DefaultToneSetting    = "friendly, concise, and professional"
)

// PublicConfig is the widget configuration served to browsers.
type PublicConfig struct {
	OrgID          string                `json:"org_id"`
	DisplayName    string                `json:"display_name"`
	WelcomeMessage string                `json:"welcome_message"`
	PrimaryColor   string                `json:"primary_color"`
	Position       models.WidgetPosition `json:"position"`
	AvatarURL      string                `json:"avatar_url,omitempty"`
	IsActive       bool                  `json:"is_active"`
	ShowPoweredBy  bool                  `json:"show_powered_by"`
}

// Resolve merges a stored widget row (possibly nil) with the defaults.
// The "powered by" badge shows only on the free plan.
func Resolve(orgID string, record *models.WidgetConfigRecord, plan models.Plan) PublicConfig {
	cfg := PublicConfig{
		OrgID:          orgID,
		DisplayName:    DefaultDisplayName,
		WelcomeMessage: DefaultWelcomeMessage,
		PrimaryColor:   DefaultPrimaryColor,
		Position:       models.WidgetBottomRight,
		IsActive:       true,
		ShowPoweredBy:  plan == models.PlanFree,
	}
	if record == nil {
		return cfg
	}
	if record.DisplayName != nil && *record.DisplayName != "" {
		cfg.DisplayName = *record.DisplayName
	}
	if record.WelcomeMessage != nil && *record.WelcomeMessage != "" {
		cfg.WelcomeMessage = *record.WelcomeMessage
	}
	if record.PrimaryColor != nil && *record.PrimaryColor != "" {
		cfg.PrimaryColor = *record.PrimaryColor
	}
	if record.Position != nil && *record.Position != "" {
		cfg.Position = *record.Position
	}
	if record.AvatarURL != nil {
		cfg.AvatarURL = *record.AvatarURL
	}
	if record.IsActive != nil {
		cfg.IsActive = *record.IsActive
	}
	return cfg
}

// ResolveTone returns the organization's configured assistant tone or the
// default.
func ResolveTone(settings models.OrganizationSettings) string {
	if strings.TrimSpace(settings.ToneSetting) != "" {
		return settings.ToneSetting
	}
	return DefaultToneSetting
}

// OriginAllowed checks a browser Origin header against the configured
// domain allowlist. An empty allowlist admits every origin. Entries match
// the host exactly, or as a wildcard when written "*.example.com".
func OriginAllowed(origin string, allowedDomains []string) bool {
	if len(allowedDomains) == 0 {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if strings.HasPrefix(domain, "*.") {
			suffix := domain[1:]
			if strings.HasSuffix(host, suffix) || host == domain[2:] {
				return true
			}
			continue
		}
		if host == domain {
			return true
		}
	}
	return false
}

// SetCORSHeaders writes the CORS response headers for a widget-facing
// endpoint replying to origin.
func SetCORSHeaders(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "600")
	h.Add("Vary", "Origin")
}
