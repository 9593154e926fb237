// Package classifier routes visitor messages to an intent category.
package classifier

import (
	"context"
	"log"
	"strings"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/prompts"
)

// Intent is one of the fixed message categories.
type Intent string

const (
	IntentSupportQuestion   Intent = "SUPPORT_QUESTION"
	IntentGreeting          Intent = "GREETING"
	IntentEscalationRequest Intent = "ESCALATION_REQUEST"
	IntentComplaint         Intent = "COMPLAINT"
	IntentSpam              Intent = "SPAM"
	IntentOther             Intent = "OTHER"
)

func validIntent(i Intent) bool {
	switch i {
	case IntentSupportQuestion, IntentGreeting, IntentEscalationRequest,
		IntentComplaint, IntentSpam, IntentOther:
		return true
	}
	return false
}

// Classifier asks the model for a single category label.
type Classifier struct {
	llm core.LLMProvider
}

func New(llm core.LLMProvider) *Classifier {
	return &Classifier{llm: llm}
}

// Classify returns the intent for message. Any model failure or
// unrecognized label degrades to OTHER so the chat turn proceeds.
func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	if c.llm == nil {
		return IntentOther
	}

	raw, err := c.llm.Generate(ctx, "", prompts.Classifier(message))
	if err != nil {
		log.Printf("classifier: generation failed, falling back to OTHER: %v", err)
		return IntentOther
	}

	label := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	if !validIntent(label) {
		log.Printf("classifier: unrecognized label %q, falling back to OTHER", raw)
		return IntentOther
	}
	return label
}
