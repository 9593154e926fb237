package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supportpilot/supportpilot/internal/core"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.reply, f.err
}

func (f *fakeLLM) GenerateStream(ctx context.Context, systemPrompt string, history []core.ChatMessage, onDelta func(string)) (*core.GenerationResult, error) {
	return &core.GenerationResult{Text: f.reply}, f.err
}

func TestClassifyRecognizedLabels(t *testing.T) {
	cases := map[string]Intent{
		"SUPPORT_QUESTION":       IntentSupportQuestion,
		"GREETING":               IntentGreeting,
		"ESCALATION_REQUEST":     IntentEscalationRequest,
		"COMPLAINT":              IntentComplaint,
		"SPAM":                   IntentSpam,
		"OTHER":                  IntentOther,
		"  greeting\n":           IntentGreeting,
		"support_question":       IntentSupportQuestion,
	}
	for reply, want := range cases {
		c := New(&fakeLLM{reply: reply})
		assert.Equal(t, want, c.Classify(context.Background(), "hello"), "reply %q", reply)
	}
}

func TestClassifyCoercesUnknownLabel(t *testing.T) {
	c := New(&fakeLLM{reply: "the message looks like a GREETING to me"})
	assert.Equal(t, IntentOther, c.Classify(context.Background(), "hello"))
}

func TestClassifyFallsBackOnError(t *testing.T) {
	c := New(&fakeLLM{err: errors.New("upstream unavailable")})
	assert.Equal(t, IntentOther, c.Classify(context.Background(), "hello"))
}

func TestClassifyWithoutProvider(t *testing.T) {
	c := New(nil)
	assert.Equal(t, IntentOther, c.Classify(context.Background(), "hello"))
}
