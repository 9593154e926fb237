package coretest

import (
	"context"
	"errors"

	"github.com/supportpilot/supportpilot/internal/core"
)

// ErrNotFound is returned by MemStore mutations targeting missing rows.
var ErrNotFound = errors.New("not found")

// Embedder returns fixed-length vectors and honors the stop check the way
// the real provider does between batches.
type Embedder struct {
	Err       error
	BatchSize int
	// Calls counts EmbedTexts invocations.
	Calls int
}

var _ core.EmbeddingProvider = (*Embedder)(nil)

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, shouldStop core.StopCheck) ([][]float32, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	if shouldStop != nil {
		stop, err := shouldStop(ctx)
		if err != nil {
			return nil, err
		}
		if stop {
			return nil, errors.New("ingestion cancelled by user")
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 2, 3}
	}
	return out, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return []float32{float32(len(text)), 1, 2, 3}, nil
}

// LLM replies with canned text.
type LLM struct {
	Reply      string
	StreamText string
	Err        error
	Tokens     int

	// LastSystemPrompt records the prompt of the most recent call.
	LastSystemPrompt string
}

var _ core.LLMProvider = (*LLM)(nil)

func (l *LLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if l.Err != nil {
		return "", l.Err
	}
	return l.Reply, nil
}

func (l *LLM) GenerateStream(ctx context.Context, systemPrompt string, history []core.ChatMessage, onDelta func(string)) (*core.GenerationResult, error) {
	l.LastSystemPrompt = systemPrompt
	if l.Err != nil {
		return nil, l.Err
	}
	if onDelta != nil && l.StreamText != "" {
		onDelta(l.StreamText)
	}
	text := l.StreamText
	if text == "" {
		text = l.Reply
	}
	return &core.GenerationResult{Text: text, TokensUsed: l.Tokens}, nil
}
