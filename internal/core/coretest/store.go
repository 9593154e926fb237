// Package coretest provides in-memory fakes for the store and AI
// providers, shared by tests across packages.
package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/models"
)

// MemStore is an in-memory core.Store. Error fields, when set, make the
// corresponding method fail.
type MemStore struct {
	mu sync.Mutex

	Orgs     map[string]*models.Organization
	Widgets  map[string]*models.WidgetConfigRecord
	UserOrgs map[string]string
	Docs     map[string]*models.Document
	Chunks   []models.DocumentChunk
	Convs    map[string]*models.Conversation
	Msgs     []models.Message
	Escs     []models.Escalation

	SearchResults []models.RetrievedChunk

	GetDocumentErr   error
	UpdateErr        error
	InsertChunksErr  error
	InsertMessageErr error
	SearchErr        error

	// OnUpdateDocument observes every document update, called with the
	// lock held.
	OnUpdateDocument func(id string, upd core.DocumentUpdate)
}

var _ core.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Orgs:     map[string]*models.Organization{},
		Widgets:  map[string]*models.WidgetConfigRecord{},
		UserOrgs: map[string]string{},
		Docs:     map[string]*models.Document{},
		Convs:    map[string]*models.Conversation{},
	}
}

func (s *MemStore) GetOrganizationByIdentifier(_ context.Context, idOrSlug string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org, ok := s.Orgs[idOrSlug]; ok {
		return org, nil
	}
	for _, org := range s.Orgs {
		if org.Slug == idOrSlug {
			return org, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetOrgIDForUser(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UserOrgs[userID], nil
}

func (s *MemStore) GetWidgetConfig(_ context.Context, orgID string) (*models.WidgetConfigRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Widgets[orgID], nil
}

func (s *MemStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.Docs[doc.ID] = &cp
	return nil
}

func (s *MemStore) GetDocument(_ context.Context, orgID, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetDocumentErr != nil {
		return nil, s.GetDocumentErr
	}
	doc, ok := s.Docs[id]
	if !ok || doc.OrgID != orgID {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *MemStore) UpdateDocument(_ context.Context, orgID, id string, upd core.DocumentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	doc, ok := s.Docs[id]
	if !ok || doc.OrgID != orgID {
		return ErrNotFound
	}
	if upd.Status != nil {
		doc.Status = *upd.Status
	}
	if upd.Content != nil {
		doc.Content = upd.Content
	}
	if upd.ChunkCount != nil {
		doc.ChunkCount = *upd.ChunkCount
	}
	doc.Metadata = upd.Metadata
	doc.UpdatedAt = time.Now().UTC()
	if s.OnUpdateDocument != nil {
		s.OnUpdateDocument(id, upd)
	}
	return nil
}

func (s *MemStore) ListDocuments(_ context.Context, orgID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, doc := range s.Docs {
		if doc.OrgID == orgID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteDocument(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.Docs[id]
	if !ok || doc.OrgID != orgID {
		return ErrNotFound
	}
	delete(s.Docs, id)
	return nil
}

func (s *MemStore) InsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertChunksErr != nil {
		return s.InsertChunksErr
	}
	s.Chunks = append(s.Chunks, chunks...)
	return nil
}

func (s *MemStore) SearchChunks(_ context.Context, orgID string, _ []float32, _ float64, _ int) ([]models.RetrievedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	return s.SearchResults, nil
}

func (s *MemStore) GetConversation(_ context.Context, orgID, visitorID, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.Convs[id]
	if !ok || conv.OrgID != orgID || conv.VisitorID != visitorID {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (s *MemStore) GetLatestActiveConversation(_ context.Context, orgID, visitorID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Conversation
	for _, conv := range s.Convs {
		if conv.OrgID != orgID || conv.VisitorID != visitorID || conv.Status != models.ConversationStatusActive {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conv
	cp.CreatedAt = time.Now().UTC()
	s.Convs[conv.ID] = &cp
	return nil
}

func (s *MemStore) SetConversationStatus(_ context.Context, orgID, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.Convs[id]
	if !ok || conv.OrgID != orgID {
		return ErrNotFound
	}
	conv.Status = status
	return nil
}

func (s *MemStore) InsertMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertMessageErr != nil {
		return s.InsertMessageErr
	}
	cp := *msg
	cp.CreatedAt = time.Now().UTC()
	s.Msgs = append(s.Msgs, cp)
	return nil
}

func (s *MemStore) GetRecentMessages(_ context.Context, orgID, conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.Msgs {
		if m.OrgID == orgID && m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemStore) CountUserMessagesSince(_ context.Context, orgID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.Msgs {
		if m.OrgID == orgID && m.Role == models.RoleUser && !m.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) GetOpenEscalation(_ context.Context, orgID, conversationID string) (*models.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Escs {
		e := &s.Escs[i]
		if e.OrgID == orgID && e.ConversationID == conversationID &&
			(e.Status == models.EscalationStatusPending || e.Status == models.EscalationStatusAssigned) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateEscalation(_ context.Context, esc *models.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *esc
	cp.CreatedAt = time.Now().UTC()
	s.Escs = append(s.Escs, cp)
	return nil
}

func (s *MemStore) Close() error { return nil }
