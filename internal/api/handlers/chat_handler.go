package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/classifier"
	"github.com/supportpilot/supportpilot/internal/core/prompts"
	"github.com/supportpilot/supportpilot/internal/core/rag"
	"github.com/supportpilot/supportpilot/internal/core/ratelimit"
	"github.com/supportpilot/supportpilot/internal/core/widget"
	"github.com/supportpilot/supportpilot/internal/models"
)

const (
	maxMessageChars = 4000
	historyLimit    = 10

	fallbackNoAPIKeyModel = "fallback-no-api-key"
	ruleBasedModel        = "rule-based"
	fallbackModel         = "fallback"
	visitorModel          = "visitor"

	emptyGenerationReply = "I don't have specific information about that in my knowledge base. Would you like me to connect you with our support team for a more detailed answer?"
	notConfiguredReply   = "The AI assistant is not fully configured yet. Please contact support and we will connect you with a human agent."
)

// Daily user-message quotas per plan. Enterprise is unmetered.
var planDailyLimits = map[models.Plan]int{
	models.PlanFree:    100,
	models.PlanStarter: 1000,
	models.PlanPro:     10000,
}

type ChatHandler struct {
	store      core.Store
	rag        *rag.Engine
	llm        core.LLMProvider
	classifier *classifier.Classifier
	limiter    *ratelimit.VisitorLimiter
	modelName  string
}

func NewChatHandler(store core.Store, engine *rag.Engine, llm core.LLMProvider, cls *classifier.Classifier, limiter *ratelimit.VisitorLimiter, modelName string) *ChatHandler {
	return &ChatHandler{
		store:      store,
		rag:        engine,
		llm:        llm,
		classifier: cls,
		limiter:    limiter,
		modelName:  modelName,
	}
}

type chatRequest struct {
	VisitorID      string `json:"visitor_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// HandleTurn runs one full widget chat turn: quota checks, conversation
// resolution, intent routing, retrieval-grounded generation, persistence.
// The reply is always a plain-text body; conversation id, intent, and
// source count travel in response headers.
func (h *ChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}
	req.VisitorID = strings.TrimSpace(req.VisitorID)
	req.Message = strings.TrimSpace(req.Message)
	if req.VisitorID == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "visitor_id is required")
		return
	}
	if req.Message == "" || len(req.Message) > maxMessageChars {
		writeError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("message must be between 1 and %d characters", maxMessageChars))
		return
	}

	org, record, ok := resolveWidgetOrg(w, r, h.store)
	if !ok {
		return
	}

	cfg := widget.Resolve(org.ID, record, org.Plan)
	if !cfg.IsActive {
		writeError(w, http.StatusForbidden, "WIDGET_INACTIVE", "the chat widget is disabled for this organization")
		return
	}

	if allowed, retryAfter := h.limiter.Consume(org.ID, req.VisitorID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		writeError(w, http.StatusTooManyRequests, "VISITOR_RATE_LIMITED", "too many messages, slow down")
		return
	}

	if limit, metered := planDailyLimits[org.Plan]; metered {
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		used, err := h.store.CountUserMessagesSince(r.Context(), org.ID, midnight)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "could not check the plan quota")
			return
		}
		if used >= limit {
			writeError(w, http.StatusTooManyRequests, "PLAN_LIMIT_REACHED", "the organization's daily message quota is exhausted")
			return
		}
	}

	conv, err := h.resolveConversation(r, org.ID, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "could not resolve the conversation")
		return
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		OrgID:          org.ID,
		Role:           models.RoleUser,
		Content:        req.Message,
		Model:          visitorModel,
	}
	if err := h.store.InsertMessage(r.Context(), userMsg); err != nil {
		writeError(w, http.StatusInternalServerError, "MESSAGE_STORE_FAILED", "could not store the message")
		return
	}

	history, err := h.store.GetRecentMessages(r.Context(), org.ID, conv.ID, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "HISTORY_LOOKUP_FAILED", "could not load the conversation history")
		return
	}

	// Without a classifier every message is treated as a support question
	// so the fallback reply path still engages.
	intent := classifier.IntentSupportQuestion
	if h.classifier != nil {
		intent = h.classifier.Classify(r.Context(), req.Message)
	}

	w.Header().Set("X-Conversation-Id", conv.ID)
	w.Header().Set("X-Intent", string(intent))

	if reply, handled := h.ruleReply(r.Context(), org.ID, conv, intent, cfg.DisplayName); handled {
		w.Header().Set("X-Source-Count", "0")
		h.persistAssistantMessage(r.Context(), org.ID, conv.ID, reply, ruleBasedModel, 0, nil)
		writeText(w, http.StatusOK, reply)
		return
	}

	h.answerSupportQuestion(w, r, org, conv, req, history)
}

// resolveConversation returns the requested conversation when the visitor
// owns it, otherwise the latest active one, otherwise a new one.
func (h *ChatHandler) resolveConversation(r *http.Request, orgID string, req chatRequest) (*models.Conversation, error) {
	ctx := r.Context()

	if req.ConversationID != "" {
		conv, err := h.store.GetConversation(ctx, orgID, req.VisitorID, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}

	conv, err := h.store.GetLatestActiveConversation(ctx, orgID, req.VisitorID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		VisitorID: req.VisitorID,
		Status:    models.ConversationStatusActive,
		Metadata: models.ConversationMetadata{
			Origin:    r.Header.Get("Origin"),
			UserAgent: r.UserAgent(),
		},
	}
	if err := h.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ruleReply answers intents that never reach the generation model. The
// second return value is false for support questions.
func (h *ChatHandler) ruleReply(ctx context.Context, orgID string, conv *models.Conversation, intent classifier.Intent, displayName string) (string, bool) {
	switch intent {
	case classifier.IntentGreeting:
		return fmt.Sprintf("Hi! I'm %s. How can I help you today?", displayName), true

	case classifier.IntentSpam:
		return "This channel is for customer support questions. If you have a question about our product or services, I'm happy to help!", true

	case classifier.IntentEscalationRequest:
		h.escalate(ctx, orgID, conv, "Visitor requested human assistance")
		return "Understood. I'll connect you with a human support agent now. They'll pick up this conversation as soon as possible.", true

	case classifier.IntentComplaint:
		h.escalate(ctx, orgID, conv, "Complaint detected")
		return "I'm sorry this has been frustrating. I've flagged this conversation for a human support agent who will follow up with you shortly.", true

	case classifier.IntentOther:
		return "Could you share a bit more detail so I can help you accurately?", true
	}
	return "", false
}

// escalate opens an escalation unless one is already open, then marks the
// conversation escalated. Failures are logged; the visitor still gets the
// rule reply.
func (h *ChatHandler) escalate(ctx context.Context, orgID string, conv *models.Conversation, reason string) {
	open, err := h.store.GetOpenEscalation(ctx, orgID, conv.ID)
	if err != nil {
		log.Printf("chat: escalation lookup failed for %s: %v", conv.ID, err)
		return
	}
	if open != nil {
		return
	}

	esc := &models.Escalation{
		ID:             uuid.NewString(),
		OrgID:          orgID,
		ConversationID: conv.ID,
		Reason:         reason,
		Priority:       models.EscalationPriorityHigh,
		Status:         models.EscalationStatusPending,
	}
	if err := h.store.CreateEscalation(ctx, esc); err != nil {
		log.Printf("chat: escalation create failed for %s: %v", conv.ID, err)
		return
	}
	if err := h.store.SetConversationStatus(ctx, orgID, conv.ID, models.ConversationStatusEscalated); err != nil {
		log.Printf("chat: conversation status update failed for %s: %v", conv.ID, err)
	}
}

// answerSupportQuestion runs retrieval-grounded generation for a support
// question and streams the reply as plain text.
func (h *ChatHandler) answerSupportQuestion(w http.ResponseWriter, r *http.Request, org *models.Organization, conv *models.Conversation, req chatRequest, history []models.Message) {
	if h.llm == nil {
		w.Header().Set("X-Source-Count", "0")
		h.persistAssistantMessage(r.Context(), org.ID, conv.ID, notConfiguredReply, fallbackNoAPIKeyModel, 0, nil)
		writeText(w, http.StatusOK, notConfiguredReply)
		return
	}

	// Retrieval failures degrade to an ungrounded answer.
	var chunks []models.RetrievedChunk
	if h.rag != nil {
		retrieved, err := h.rag.Retrieve(r.Context(), org.ID, req.Message, 0, 0)
		if err != nil {
			log.Printf("chat: retrieval failed for %s: %v", conv.ID, err)
		} else {
			chunks = retrieved
		}
	}

	sources := make([]models.ChunkSource, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, models.ChunkSource{ID: c.ID, Similarity: c.Similarity})
	}
	w.Header().Set("X-Source-Count", strconv.Itoa(len(sources)))

	systemPrompt := prompts.ChatSystem(
		org.Name,
		widget.ResolveTone(org.Settings),
		rag.BuildContext(chunks),
		renderHistory(history),
	)

	chat := make([]core.ChatMessage, 0, len(history))
	for _, m := range history {
		chat = append(chat, core.ChatMessage{Role: m.Role, Content: m.Content})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	onDelta := func(delta string) {
		_, _ = w.Write([]byte(delta))
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, err := h.llm.GenerateStream(r.Context(), systemPrompt, chat, onDelta)
	if err != nil {
		// The stream is already open; failures surface as inline text.
		log.Printf("chat: generation failed for %s: %v", conv.ID, err)
		_, _ = w.Write([]byte(emptyGenerationReply))
		h.persistAssistantMessage(r.Context(), org.ID, conv.ID, emptyGenerationReply, fallbackModel, 0, sources)
		return
	}

	reply := strings.TrimSpace(result.Text)
	model := h.modelName
	if reply == "" {
		reply = emptyGenerationReply
		model = fallbackModel
		_, _ = w.Write([]byte(reply))
	}

	h.persistAssistantMessage(r.Context(), org.ID, conv.ID, reply, model, result.TokensUsed, sources)
}

// persistAssistantMessage stores the reply best effort; the visitor has
// already seen the text, so persistence failures only get logged.
func (h *ChatHandler) persistAssistantMessage(ctx context.Context, orgID, convID, content, model string, tokens int, sources []models.ChunkSource) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		OrgID:          orgID,
		Role:           models.RoleAssistant,
		Content:        content,
		Model:          model,
		TokensUsed:     tokens,
		Sources:        sources,
	}
	if err := h.store.InsertMessage(ctx, msg); err != nil {
		log.Printf("chat: assistant message store failed for %s: %v", convID, err)
	}
}

func renderHistory(history []models.Message) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			b.WriteString("Visitor: ")
		case models.RoleHumanAgent:
			b.WriteString("Agent: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
