package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/coretest"
	"github.com/supportpilot/supportpilot/internal/core/retry"
	"github.com/supportpilot/supportpilot/internal/models"
)

func newTestPipeline(store core.Store, embedder core.EmbeddingProvider) *Pipeline {
	return NewPipeline(store, embedder, nil, "", 0)
}

func textSource(text string) Source {
	return Source{Type: models.SourceText, Title: "Help article", Text: text}
}

func TestRunTextSourceToReady(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	content := strings.Repeat("Our refund policy allows returns within 30 days. ", 5)
	outcome, err := p.Run(context.Background(), "org-1", textSource(content))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	doc := store.Docs[outcome.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocumentStatusReady, doc.Status)
	assert.Equal(t, models.StageCompleted, doc.Metadata.Ingestion.Stage)
	assert.Equal(t, 100, doc.Metadata.Ingestion.ProgressPercent)
	assert.GreaterOrEqual(t, doc.ChunkCount, 1)
	assert.Equal(t, doc.ChunkCount, outcome.ChunkCount)
	assert.Len(t, store.Chunks, outcome.ChunkCount)
	assert.NotNil(t, doc.Metadata.CompletedAt)
	require.NotNil(t, doc.Content)
	assert.Contains(t, *doc.Content, "refund policy")
}

func TestRunRejectsMissingTitle(t *testing.T) {
	p := newTestPipeline(coretest.NewMemStore(), &coretest.Embedder{})
	_, err := p.Run(context.Background(), "org-1", Source{Type: models.SourceText, Text: "hello"})
	require.Error(t, err)
	assert.True(t, retry.IsValidationMessage(err))
}

func TestRunRejectsShortContent(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	_, err := p.Run(context.Background(), "org-1", textSource("tiny"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No usable content")

	// The document row exists and records the failure.
	require.Len(t, store.Docs, 1)
	for _, doc := range store.Docs {
		assert.Equal(t, models.DocumentStatusError, doc.Status)
		assert.Equal(t, models.StageFailed, doc.Metadata.Ingestion.Stage)
		assert.NotNil(t, doc.Metadata.FailedAt)
		assert.Contains(t, doc.Metadata.Error, "No usable content")
	}
}

func TestRunTruncatesOversizedContent(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	big := strings.Repeat("All plans include email support and a knowledge base. ", 11000)
	outcome, err := p.Run(context.Background(), "org-1", textSource(big))
	require.NoError(t, err)

	doc := store.Docs[outcome.DocumentID]
	assert.True(t, doc.Metadata.ContentTruncated)
	assert.LessOrEqual(t, doc.Metadata.ContentCharacters, 500_000)
}

func TestRunCancelledMidway(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	// Flag cancellation as soon as the pipeline reaches the chunking stage.
	store.OnUpdateDocument = func(id string, upd core.DocumentUpdate) {
		if upd.Metadata.Ingestion.Stage == models.StageChunking {
			doc := store.Docs[id]
			doc.Metadata.Ingestion.CancelRequested = true
			now := time.Now().UTC()
			doc.Metadata.CancelRequestedAt = &now
		}
	}

	_, err := p.Run(context.Background(), "org-1", textSource(strings.Repeat("Support content. ", 20)))
	require.Error(t, err)
	assert.True(t, retry.IsCancellation(err))

	require.Len(t, store.Docs, 1)
	for _, doc := range store.Docs {
		assert.Equal(t, models.DocumentStatusError, doc.Status)
		assert.Equal(t, models.StageCancelled, doc.Metadata.Ingestion.Stage)
		assert.True(t, doc.Metadata.Cancelled)
		assert.Nil(t, doc.Metadata.FailedAt)
	}
	assert.Empty(t, store.Chunks, "no chunks may be stored after cancellation")
}

func TestRunCountMismatchFails(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &mismatchEmbedder{})

	_, err := p.Run(context.Background(), "org-1", textSource(strings.Repeat("Support content. ", 20)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Embedding count does not match chunk count")
}

func TestRunFAQSource(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	outcome, err := p.Run(context.Background(), "org-1", Source{
		Type:        models.SourceFAQ,
		Title:       "Billing FAQ",
		FAQQuestion: "When does my subscription renew?",
		FAQAnswer:   "Subscriptions renew on the first day of each billing month.",
	})
	require.NoError(t, err)

	require.NotEmpty(t, store.Chunks)
	assert.Equal(t, "When does my subscription renew?", store.Chunks[0].Metadata.FAQQuestion)
	assert.Equal(t, models.SourceFAQ, store.Chunks[0].Metadata.SourceType)
	doc := store.Docs[outcome.DocumentID]
	require.NotNil(t, doc.Content)
	assert.Contains(t, *doc.Content, "Question: When does my subscription renew?")
}

func TestRunFileSourceRecordsSourceMeta(t *testing.T) {
	store := coretest.NewMemStore()
	p := newTestPipeline(store, &coretest.Embedder{})

	data := []byte("question,answer\nHow long does shipping take?,Three to five business days\n")
	outcome, err := p.Run(context.Background(), "org-1", Source{
		Type:     models.SourceCSV,
		Title:    "Shipping FAQ",
		FileName: "shipping.CSV",
		FileData: data,
	})
	require.NoError(t, err)

	doc := store.Docs[outcome.DocumentID]
	require.NotNil(t, doc)
	src := doc.Metadata.Source
	require.NotNil(t, src)
	assert.Equal(t, "shipping.CSV", src.FileName)
	assert.Equal(t, "csv", src.FileType)
	assert.Equal(t, len(data), src.FileSize)
}

func TestRunWithoutEmbedder(t *testing.T) {
	p := newTestPipeline(coretest.NewMemStore(), nil)
	_, err := p.Run(context.Background(), "org-1", textSource("long enough content here"))
	require.Error(t, err)
}

// mismatchEmbedder drops one vector to simulate a provider bug.
type mismatchEmbedder struct{}

func (m *mismatchEmbedder) EmbedTexts(_ context.Context, texts []string, _ core.StopCheck) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts {
		out = append(out, []float32{1, 2, 3})
	}
	return append(out, []float32{9, 9, 9}), nil
}

func (m *mismatchEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}
