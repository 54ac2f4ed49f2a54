package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type nowFunc func() time.Time

// MemoryRepo is an in-memory Repository used for development and tests.
// A single lock serializes all mutations, which trivially satisfies the
// per-document ordering contract.
type MemoryRepo struct {
	mu       sync.RWMutex
	store    map[string]*document.Document
	messages map[string][]*document.ChatMessage
	now      nowFunc
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store:    make(map[string]*document.Document),
		messages: make(map[string][]*document.ChatMessage),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepo) Create(_ context.Context, doc *document.Document) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := prepareNew(doc, uuid.NewString(), m.now); err != nil {
		return nil, err
	}
	m.store[doc.ID] = doc.Clone()
	return doc.Clone(), nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrDocumentNotFound
}

func (m *MemoryRepo) GetByShareToken(_ context.Context, token string) (*document.Document, error) {
	if token == "" {
		return nil, document.ErrDocumentNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.store {
		if d.ShareToken == token {
			return d.Clone(), nil
		}
	}
	return nil, document.ErrDocumentNotFound
}

// mutate runs fn on the stored document under the write lock.
func (m *MemoryRepo) mutate(id string, fn func(d *document.Document) error) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = m.now()
	return d.Clone(), nil
}

func (m *MemoryRepo) Update(_ context.Context, id, content, editorID string) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) error {
		d.Content = content
		d.Versions = append(d.Versions, document.Version{Content: content, EditedBy: editorID, Timestamp: m.now()})
		return nil
	})
}

func (m *MemoryRepo) Revert(_ context.Context, id string, versionIndex int) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) error {
		if versionIndex < 0 || versionIndex >= len(d.Versions) {
			return document.ErrVersionOutOfRange
		}
		d.Content = d.Versions[versionIndex].Content
		return nil
	})
}

func (m *MemoryRepo) AddCollaborator(_ context.Context, id, userID string) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) error {
		if d.IsCollaborator(userID) {
			return document.ErrAlreadyCollaborator
		}
		if d.OwnerID == userID {
			return document.ErrOwnerCollaborator
		}
		d.Collaborators = append(d.Collaborators, userID)
		return nil
	})
}

func (m *MemoryRepo) RemoveCollaborator(_ context.Context, id, userID string) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) error {
		if !d.IsCollaborator(userID) {
			return document.ErrNotCollaborator
		}
		d.Collaborators = lo.Without(d.Collaborators, userID)
		return nil
	})
}

func (m *MemoryRepo) SetShareToken(_ context.Context, id, token string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	if token != "" {
		for otherID, other := range m.store {
			if otherID != id && other.ShareToken == token {
				return nil, document.ErrShareTokenTaken
			}
		}
	}
	d.ShareToken = token
	d.UpdatedAt = m.now()
	return d.Clone(), nil
}

func (m *MemoryRepo) ListForUser(_ context.Context, userID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if d.OwnerID == userID || d.IsCollaborator(userID) {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *MemoryRepo) AppendChatMessage(_ context.Context, documentID, authorID, text string) (*document.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &document.ChatMessage{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		User:       authorID,
		Message:    text,
		Timestamp:  m.now(),
		Seq:        int64(len(m.messages[documentID]) + 1),
	}
	m.messages[documentID] = append(m.messages[documentID], msg)
	cp := *msg
	return &cp, nil
}

func (m *MemoryRepo) ListChatMessages(_ context.Context, documentID string) ([]*document.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.messages[documentID]
	out := make([]*document.ChatMessage, 0, len(src))
	for _, msg := range src {
		cp := *msg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
