// Package rag retrieves knowledge-base chunks for grounding generated
// replies.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/models"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity a chunk
	// must reach to count as a match.
	DefaultSimilarityThreshold = 0.7
	// DefaultMatchCount caps how many chunks ground one reply.
	DefaultMatchCount = 5
)

// Engine performs embed-then-search retrieval against the chunk store.
type Engine struct {
	store    core.Store
	embedder core.EmbeddingProvider
}

func New(store core.Store, embedder core.EmbeddingProvider) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Retrieve embeds query and returns the organization's chunks at or above
// threshold, best first. Zero threshold and limit select the defaults.
func (e *Engine) Retrieve(ctx context.Context, orgID, query string, threshold float64, limit int) ([]models.RetrievedChunk, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("retrieval requires an embedding provider")
	}
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	if limit == 0 {
		limit = DefaultMatchCount
	}

	vector, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := e.store.SearchChunks(ctx, orgID, vector, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return chunks, nil
}

// BuildContext renders retrieved chunks as the prompt excerpt block.
func BuildContext(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "No matching knowledge-base chunks were found."
	}
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("Chunk %d (similarity: %.3f):\n%s", i+1, chunk.Similarity, chunk.Content))
	}
	return strings.Join(parts, "\n\n")
}
