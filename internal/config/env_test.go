package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/supportpilot_test")

	cfg := LoadConfig()
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
	assert.Equal(t, "gemini-1.5-flash", cfg.GenModel)
	assert.Equal(t, "gemini-1.5-flash", cfg.ClassifierModel)
	assert.Equal(t, "SupportPilotBot/1.0", cfg.CrawlerUserAgent)
	assert.Equal(t, 50, cfg.CrawlerMaxPages)
}

func TestLoadConfigClassifierModelOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/supportpilot_test")
	t.Setenv("CLASSIFIER_MODEL", "gemini-1.5-flash-8b")

	cfg := LoadConfig()
	assert.Equal(t, "gemini-1.5-flash-8b", cfg.ClassifierModel)
}
