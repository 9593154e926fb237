package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

// ModelName reports the configured generation model, used to tag persisted
// assistant messages.
func (g *GeminiLLM) ModelName() string { return g.modelName }

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// GenerateStream sends the conversation history plus the final user turn
// and streams the reply, calling onDelta per fragment. The assembled text
// and token usage come back in the result.
func (g *GeminiLLM) GenerateStream(ctx context.Context, systemPrompt string, history []core.ChatMessage, onDelta func(string)) (*core.GenerationResult, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	if len(history) == 0 {
		return nil, fmt.Errorf("gemini stream: empty history")
	}
	last := history[len(history)-1]

	cs := m.StartChat()
	for _, msg := range history[:len(history)-1] {
		cs.History = append(cs.History, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(last.Content))

	result := &core.GenerationResult{}
	var b strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if resp.UsageMetadata != nil {
			result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					b.WriteString(string(t))
					if onDelta != nil {
						onDelta(string(t))
					}
				}
			}
		}
	}

	result.Text = b.String()
	return result, nil
}

// geminiRole maps conversation roles onto the two roles the API accepts.
// Agent turns read as model turns so the history stays alternating.
func geminiRole(role string) string {
	if role == models.RoleUser {
		return "user"
	}
	return "model"
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
