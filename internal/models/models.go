package models

import (
	"time"
)

// SourceType identifies how a document entered the knowledge base.
type SourceType string

const (
	SourcePDF  SourceType = "pdf"
	SourceDocx SourceType = "docx"
	SourceCSV  SourceType = "csv"
	SourceURL  SourceType = "url"
	SourceText SourceType = "text"
	SourceFAQ  SourceType = "faq"
)

// ValidSourceType reports whether s is one of the accepted source kinds.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourcePDF, SourceDocx, SourceCSV, SourceURL, SourceText, SourceFAQ:
		return true
	}
	return false
}

// Document statuses. A document stays "processing" until the ingestion
// pipeline reaches a terminal outcome; chunk_count is authoritative only
// when the status is "ready".
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusError      = "error"
)

// Document is one organization-scoped knowledge source.
type Document struct {
	ID         string           `db:"id" json:"id"`
	OrgID      string           `db:"org_id" json:"org_id"`
	Title      string           `db:"title" json:"title"`
	SourceType SourceType       `db:"source_type" json:"source_type"`
	Status     string           `db:"status" json:"status"`
	ChunkCount int              `db:"chunk_count" json:"chunk_count"`
	Content    *string          `db:"content" json:"content,omitempty"`
	Metadata   DocumentMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one embedded slice of a document's normalized content.
type DocumentChunk struct {
	ID         string        `db:"id" json:"id"`
	DocumentID string        `db:"document_id" json:"document_id"`
	OrgID      string        `db:"org_id" json:"org_id"`
	Content    string        `db:"content" json:"content"`
	TokenCount int           `db:"token_count" json:"token_count"`
	Embedding  []float32     `db:"embedding" json:"-"`
	Metadata   ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// ChunkMetadata carries positional and provenance data for one chunk.
type ChunkMetadata struct {
	SourceType  SourceType `json:"sourceType"`
	ChunkIndex  int        `json:"chunkIndex"`
	SourceURL   string     `json:"sourceUrl,omitempty"`
	FileName    string     `json:"fileName,omitempty"`
	FAQQuestion string     `json:"faqQuestion,omitempty"`
}

// RetrievedChunk is one similarity-search hit used for grounding.
type RetrievedChunk struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// ChunkSource records which chunks grounded an assistant reply.
type ChunkSource struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Conversation statuses.
const (
	ConversationStatusActive    = "active"
	ConversationStatusEscalated = "escalated"
)

// Conversation is one visitor-organization chat session.
type Conversation struct {
	ID        string               `db:"id" json:"id"`
	OrgID     string               `db:"org_id" json:"org_id"`
	VisitorID string               `db:"visitor_id" json:"visitor_id"`
	Status    string               `db:"status" json:"status"`
	Metadata  ConversationMetadata `db:"metadata" json:"metadata"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// ConversationMetadata records where the conversation originated.
type ConversationMetadata struct {
	Origin    string `json:"origin,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Message roles.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleSystem     = "system"
	RoleHumanAgent = "human_agent"
)

// Message is one immutable turn in a conversation.
type Message struct {
	ID             string        `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	OrgID          string        `db:"org_id" json:"org_id"`
	Role           string        `db:"role" json:"role"`
	Content        string        `db:"content" json:"content"`
	Model          string        `db:"model" json:"model"`
	TokensUsed     int           `db:"tokens_used" json:"tokens_used,omitempty"`
	Sources        []ChunkSource `db:"sources" json:"sources,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// Escalation priorities and statuses.
const (
	EscalationPriorityLow    = "low"
	EscalationPriorityMedium = "medium"
	EscalationPriorityHigh   = "high"
	EscalationPriorityUrgent = "urgent"

	EscalationStatusPending  = "pending"
	EscalationStatusAssigned = "assigned"
	EscalationStatusResolved = "resolved"
)

// Escalation requests human agent attention for one conversation. At most
// one open (pending or assigned) escalation exists per conversation.
type Escalation struct {
	ID             string    `db:"id" json:"id"`
	OrgID          string    `db:"org_id" json:"org_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Reason         string    `db:"reason" json:"reason"`
	Priority       string    `db:"priority" json:"priority"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Plan is the organization's subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Organization is the tenant boundary for all data.
type Organization struct {
	ID       string               `db:"id" json:"id"`
	Slug     string               `db:"slug" json:"slug"`
	Name     string               `db:"name" json:"name"`
	Plan     Plan                 `db:"plan" json:"plan"`
	Settings OrganizationSettings `db:"settings" json:"settings"`
}

// OrganizationSettings holds per-tenant assistant tuning.
type OrganizationSettings struct {
	ToneSetting string `json:"tone_setting,omitempty"`
}

// WidgetPosition is the embeddable widget's screen corner.
type WidgetPosition string

const (
	WidgetBottomRight WidgetPosition = "bottom-right"
	WidgetBottomLeft  WidgetPosition = "bottom-left"
)

// WidgetConfigRecord is the stored per-organization widget row; nil pointer
// fields fall back to defaults when the public config is assembled.
type WidgetConfigRecord struct {
	OrgID          string          `db:"org_id" json:"org_id"`
	DisplayName    *string         `db:"display_name" json:"display_name"`
	WelcomeMessage *string         `db:"welcome_message" json:"welcome_message"`
	PrimaryColor   *string         `db:"primary_color" json:"primary_color"`
	Position       *WidgetPosition `db:"position" json:"position"`
	AvatarURL      *string         `db:"avatar_url" json:"avatar_url"`
	IsActive       *bool           `db:"is_active" json:"is_active"`
	AllowedDomains []string        `db:"allowed_domains" json:"allowed_domains"`
}
