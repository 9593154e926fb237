package core

import (
	"context"
	"time"

	"github.com/supportpilot/supportpilot/internal/models"
)

// DocumentUpdate is a partial update applied at each ingestion stage
// transition. Nil fields are left untouched; Metadata is always rewritten
// so the latest persisted snapshot reflects the most recent stage boundary.
type DocumentUpdate struct {
	Status     *string
	Content    *string
	ChunkCount *int
	Metadata   models.DocumentMetadata
}

// Store defines all persistence operations the service needs. It abstracts
// Postgres/pgvector so higher layers never depend on a specific database.
type Store interface {
	// Tenancy.
	GetOrganizationByIdentifier(ctx context.Context, idOrSlug string) (*models.Organization, error)
	GetOrgIDForUser(ctx context.Context, userID string) (string, error)
	GetWidgetConfig(ctx context.Context, orgID string) (*models.WidgetConfigRecord, error)

	// Documents and chunks.
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, orgID, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, orgID, id string, upd DocumentUpdate) error
	ListDocuments(ctx context.Context, orgID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, orgID, id string) error
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	SearchChunks(ctx context.Context, orgID string, embedding []float32, threshold float64, limit int) ([]models.RetrievedChunk, error)

	// Conversations and messages.
	GetConversation(ctx context.Context, orgID, visitorID, id string) (*models.Conversation, error)
	GetLatestActiveConversation(ctx context.Context, orgID, visitorID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	SetConversationStatus(ctx context.Context, orgID, id, status string) error
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetRecentMessages(ctx context.Context, orgID, conversationID string, limit int) ([]models.Message, error)
	CountUserMessagesSince(ctx context.Context, orgID string, since time.Time) (int, error)

	// Escalations.
	GetOpenEscalation(ctx context.Context, orgID, conversationID string) (*models.Escalation, error)
	CreateEscalation(ctx context.Context, esc *models.Escalation) error

	Close() error
}
