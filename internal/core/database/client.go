// Package db implements the persistence layer on Postgres with pgvector.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.Store = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, databaseURL string) (*DatabaseClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Tenancy.

func (c *DatabaseClient) GetOrganizationByIdentifier(ctx context.Context, idOrSlug string) (*models.Organization, error) {
	const q = `
		SELECT id, slug, name, plan, settings
		FROM organizations
		WHERE id::text = $1 OR slug = $1
	`
	var (
		o        models.Organization
		settings []byte
	)
	err := c.db.QueryRowContext(ctx, q, idOrSlug).Scan(&o.ID, &o.Slug, &o.Name, &o.Plan, &settings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &o.Settings); err != nil {
			return nil, fmt.Errorf("decode organization settings: %w", err)
		}
	}
	return &o, nil
}

func (c *DatabaseClient) GetOrgIDForUser(ctx context.Context, userID string) (string, error) {
	const q = `SELECT org_id FROM org_members WHERE user_id = $1`
	var orgID string
	err := c.db.QueryRowContext(ctx, q, userID).Scan(&orgID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}

func (c *DatabaseClient) GetWidgetConfig(ctx context.Context, orgID string) (*models.WidgetConfigRecord, error) {
	const q = `
		SELECT org_id, display_name, welcome_message, primary_color, position,
		       avatar_url, is_active, allowed_domains
		FROM widget_configs
		WHERE org_id = $1
	`
	var (
		w       models.WidgetConfigRecord
		domains []byte
	)
	err := c.db.QueryRowContext(ctx, q, orgID).Scan(
		&w.OrgID, &w.DisplayName, &w.WelcomeMessage, &w.PrimaryColor, &w.Position,
		&w.AvatarURL, &w.IsActive, &domains,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(domains) > 0 {
		if err := json.Unmarshal(domains, &w.AllowedDomains); err != nil {
			return nil, fmt.Errorf("decode allowed domains: %w", err)
		}
	}
	return &w, nil
}

// Documents.

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode document metadata: %w", err)
	}
	const q = `
		INSERT INTO documents
			(id, org_id, title, source_type, status, chunk_count, content, metadata, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.OrgID, doc.Title, doc.SourceType, doc.Status, doc.ChunkCount, doc.Content, meta)
	return err
}

func (c *DatabaseClient) GetDocument(ctx context.Context, orgID, id string) (*models.Document, error) {
	const q = `
		SELECT id, org_id, title, source_type, status, chunk_count, content, metadata, created_at, updated_at
		FROM documents
		WHERE org_id = $1 AND id = $2
	`
	row := c.db.QueryRowContext(ctx, q, orgID, id)
	return scanDocument(row)
}

func (c *DatabaseClient) UpdateDocument(ctx context.Context, orgID, id string, upd core.DocumentUpdate) error {
	meta, err := json.Marshal(upd.Metadata)
	if err != nil {
		return fmt.Errorf("encode document metadata: %w", err)
	}
	const q = `
		UPDATE documents
		SET status      = COALESCE($3, status),
		    content     = COALESCE($4, content),
		    chunk_count = COALESCE($5, chunk_count),
		    metadata    = $6,
		    updated_at  = now()
		WHERE org_id = $1 AND id = $2
	`
	res, err := c.db.ExecContext(ctx, q, orgID, id, upd.Status, upd.Content, upd.ChunkCount, meta)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, orgID string) ([]models.Document, error) {
	const q = `
		SELECT id, org_id, title, source_type, status, chunk_count, content, metadata, created_at, updated_at
		FROM documents
		WHERE org_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, orgID, id string) error {
	const q = `DELETE FROM documents WHERE org_id = $1 AND id = $2`
	res, err := c.db.ExecContext(ctx, q, orgID, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d    models.Document
		meta []byte
	)
	err := row.Scan(
		&d.ID, &d.OrgID, &d.Title, &d.SourceType, &d.Status, &d.ChunkCount,
		&d.Content, &meta, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
	}
	return &d, nil
}

// Chunks.

// InsertChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, org_id, content, token_count, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode chunk metadata: %w", err)
		}
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.OrgID, ch.Content, ch.TokenCount, vec, meta,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunks returns the organization's chunks whose cosine similarity to
// embedding meets threshold, best first.
func (c *DatabaseClient) SearchChunks(ctx context.Context, orgID string, embedding []float32, threshold float64, limit int) ([]models.RetrievedChunk, error) {
	const q = `
		SELECT id, content, metadata, 1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE org_id = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2
		LIMIT $4
	`
	vec := pgvector.NewVector(embedding)
	rows, err := c.db.QueryContext(ctx, q, orgID, vec, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RetrievedChunk
	for rows.Next() {
		var (
			ch   models.RetrievedChunk
			meta []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Content, &meta, &ch.Similarity); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Conversations and messages.

func (c *DatabaseClient) GetConversation(ctx context.Context, orgID, visitorID, id string) (*models.Conversation, error) {
	const q = `
		SELECT id, org_id, visitor_id, status, metadata, created_at
		FROM conversations
		WHERE org_id = $1 AND visitor_id = $2 AND id = $3
	`
	return scanConversation(c.db.QueryRowContext(ctx, q, orgID, visitorID, id))
}

func (c *DatabaseClient) GetLatestActiveConversation(ctx context.Context, orgID, visitorID string) (*models.Conversation, error) {
	const q = `
		SELECT id, org_id, visitor_id, status, metadata, created_at
		FROM conversations
		WHERE org_id = $1 AND visitor_id = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanConversation(c.db.QueryRowContext(ctx, q, orgID, visitorID))
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv models.Conversation
		meta []byte
	)
	err := row.Scan(&conv.ID, &conv.OrgID, &conv.VisitorID, &conv.Status, &meta, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode conversation metadata: %w", err)
		}
	}
	return &conv, nil
}

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encode conversation metadata: %w", err)
	}
	const q = `
		INSERT INTO conversations (id, org_id, visitor_id, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err = c.db.ExecContext(ctx, q, conv.ID, conv.OrgID, conv.VisitorID, conv.Status, meta)
	return err
}

func (c *DatabaseClient) SetConversationStatus(ctx context.Context, orgID, id, status string) error {
	const q = `UPDATE conversations SET status = $3 WHERE org_id = $1 AND id = $2`
	res, err := c.db.ExecContext(ctx, q, orgID, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("encode message sources: %w", err)
	}
	const q = `
		INSERT INTO messages (id, conversation_id, org_id, role, content, model, tokens_used, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`
	_, err = c.db.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, msg.OrgID, msg.Role, msg.Content, msg.Model, msg.TokensUsed, sources)
	return err
}

// GetRecentMessages returns the newest limit messages in chronological
// order.
func (c *DatabaseClient) GetRecentMessages(ctx context.Context, orgID, conversationID string, limit int) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, org_id, role, content, model, tokens_used, sources, created_at
		FROM messages
		WHERE org_id = $1 AND conversation_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, orgID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m       models.Message
			sources []byte
		)
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.OrgID, &m.Role, &m.Content, &m.Model, &m.TokensUsed, &sources, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, fmt.Errorf("decode message sources: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (c *DatabaseClient) CountUserMessagesSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	const q = `
		SELECT count(*)
		FROM messages
		WHERE org_id = $1 AND role = 'user' AND created_at >= $2
	`
	var n int
	if err := c.db.QueryRowContext(ctx, q, orgID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Escalations.

func (c *DatabaseClient) GetOpenEscalation(ctx context.Context, orgID, conversationID string) (*models.Escalation, error) {
	const q = `
		SELECT id, org_id, conversation_id, reason, priority, status, created_at
		FROM escalations
		WHERE org_id = $1 AND conversation_id = $2 AND status IN ('pending', 'assigned')
		LIMIT 1
	`
	var e models.Escalation
	err := c.db.QueryRowContext(ctx, q, orgID, conversationID).Scan(
		&e.ID, &e.OrgID, &e.ConversationID, &e.Reason, &e.Priority, &e.Status, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *DatabaseClient) CreateEscalation(ctx context.Context, esc *models.Escalation) error {
	if esc == nil {
		return errors.New("nil escalation")
	}
	const q = `
		INSERT INTO escalations (id, org_id, conversation_id, reason, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	_, err := c.db.ExecContext(ctx, q,
		esc.ID, esc.OrgID, esc.ConversationID, esc.Reason, esc.Priority, esc.Status)
	return err
}
