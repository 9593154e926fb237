// Package prompts holds the system prompt templates for generation and
// intent classification.
package prompts

import "strings"

const chatSystemTemplate = `You are a customer support assistant for {business_name}.

Your tone should be: {tone_setting}

Answer the visitor's question using ONLY the knowledge base excerpts below.
If the excerpts do not contain the answer, say so honestly and offer to
connect the visitor with a human support agent. Never invent facts,
prices, or policies.

Knowledge base excerpts:
{retrieved_chunks}

Recent conversation:
{conversation_history}`

const classifierTemplate = `Classify the following customer support message into exactly one category.

Categories:
- SUPPORT_QUESTION: a question about the product, service, account, or policies
- GREETING: a greeting or pleasantry with no question
- ESCALATION_REQUEST: an explicit request to talk to a human or agent
- COMPLAINT: an expression of frustration, anger, or dissatisfaction
- SPAM: promotional content, gibberish, or clearly off-topic solicitation
- OTHER: anything that fits none of the above

Message:
{message}

Respond with the category name only.`

// ChatSystem renders the generation system prompt.
func ChatSystem(businessName, toneSetting, retrievedChunks, conversationHistory string) string {
	r := strings.NewReplacer(
		"{business_name}", businessName,
		"{tone_setting}", toneSetting,
		"{retrieved_chunks}", retrievedChunks,
		"{conversation_history}", conversationHistory,
	)
	return r.Replace(chatSystemTemplate)
}

// Classifier renders the intent classification prompt for one message.
func Classifier(message string) string {
	return strings.ReplaceAll(classifierTemplate, "{message}", message)
}
