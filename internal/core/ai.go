package core

import "context"

// StopCheck is polled at cooperative cancellation checkpoints inside
// long-running work. Returning true aborts the operation with a
// cancellation error; a non-nil error aborts it with that error.
type StopCheck func(ctx context.Context) (bool, error)

// EmbeddingProvider turns texts into fixed-length vectors.
type EmbeddingProvider interface {
	// EmbedTexts returns one vector per input, preserving order. The stop
	// check runs before each upstream batch call.
	EmbedTexts(ctx context.Context, texts []string, shouldStop StopCheck) ([][]float32, error)
	// EmbedText embeds a single query string.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ChatMessage is one prior turn handed to the generation model.
type ChatMessage struct {
	Role    string
	Content string
}

// GenerationResult is the final output of a streamed generation.
type GenerationResult struct {
	Text       string
	TokensUsed int
}

// LLMProvider wraps the outbound text-generation model.
type LLMProvider interface {
	// Generate runs a one-shot completion (used by the intent classifier).
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateStream streams a grounded completion, invoking onDelta for
	// each text fragment, and returns the assembled result.
	GenerateStream(ctx context.Context, systemPrompt string, history []ChatMessage, onDelta func(string)) (*GenerationResult, error)
}

// ObjectStore archives raw source files (best effort).
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}
