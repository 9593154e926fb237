package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpilot/supportpilot/internal/models"
)

func TestSplitShortContentYieldsSingleChunk(t *testing.T) {
	s := New()
	chunks := s.Split("A short help article about password resets.", models.SourceText, models.ChunkMetadata{})

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short help article about password resets.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Greater(t, chunks[0].TokenCount, 0)
}

func TestSplitEmptyContent(t *testing.T) {
	s := New()
	assert.Nil(t, s.Split("   \n\n  ", models.SourceText, models.ChunkMetadata{}))
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s := &Splitter{ChunkSize: 120, ChunkOverlap: 30}

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Refund requests are processed within five business days.\n\n")
	}

	chunks := s.Split(b.String(), models.SourceText, models.ChunkMetadata{})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 120+60, "chunk may exceed the target only by one oversized split")
	}
}

func TestSplitIndexesAreMonotonic(t *testing.T) {
	s := &Splitter{ChunkSize: 80, ChunkOverlap: 10}
	chunks := s.Split(strings.Repeat("Billing happens monthly. ", 50), models.SourceFAQ, models.ChunkMetadata{FAQQuestion: "When am I billed?"})

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, models.SourceFAQ, c.Metadata.SourceType)
		assert.Equal(t, "When am I billed?", c.Metadata.FAQQuestion)
	}
}

func TestSplitPreservesAllMeaningfulText(t *testing.T) {
	s := &Splitter{ChunkSize: 100, ChunkOverlap: 20}
	paragraphs := []string{
		"Our support hours are 9am to 5pm UTC on weekdays.",
		"Enterprise customers get a dedicated account manager.",
		"You can export your data at any time from the settings page.",
	}
	chunks := s.Split(strings.Join(paragraphs, "\n\n"), models.SourceText, models.ChunkMetadata{})

	joined := ""
	for _, c := range chunks {
		joined += c.Content + "\n"
	}
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestSplitHardCutsUnbreakableText(t *testing.T) {
	s := &Splitter{ChunkSize: 50, ChunkOverlap: 10}
	chunks := s.Split(strings.Repeat("x", 175), models.SourceText, models.ChunkMetadata{})

	require.Len(t, chunks, 4)
	for _, c := range chunks[:3] {
		assert.Len(t, c.Content, 50)
	}
	assert.Len(t, chunks[3].Content, 25)
}
