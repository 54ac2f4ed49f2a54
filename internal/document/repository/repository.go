package repository

import (
	"context"

	"github.com/codecollab/collab-server/internal/document"
)

// Repository is the durable document store. Implementations serialize
// read-modify-append per document so content and the last version agree.
type Repository interface {
	Create(ctx context.Context, doc *document.Document) (*document.Document, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	GetByShareToken(ctx context.Context, token string) (*document.Document, error)
	Update(ctx context.Context, id, content, editorID string) (*document.Document, error)
	Revert(ctx context.Context, id string, versionIndex int) (*document.Document, error)
	AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error)
	RemoveCollaborator(ctx context.Context, id, userID string) (*document.Document, error)
	// SetShareToken stores token; an empty token revokes sharing.
	SetShareToken(ctx context.Context, id, token string) (*document.Document, error)
	ListForUser(ctx context.Context, userID string) ([]*document.Document, error)

	AppendChatMessage(ctx context.Context, documentID, authorID, text string) (*document.ChatMessage, error)
	ListChatMessages(ctx context.Context, documentID string) ([]*document.ChatMessage, error)
}

// prepareNew fills defaults shared by every implementation.
func prepareNew(doc *document.Document, id string, now nowFunc) error {
	if doc.Title == "" {
		return document.ErrTitleRequired
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.Language == "" {
		doc.Language = document.DefaultLanguage
	}
	ts := now()
	doc.CreatedAt = ts
	doc.UpdatedAt = ts
	doc.Collaborators = []string{}
	doc.ShareToken = ""
	doc.Versions = []document.Version{{Content: doc.Content, EditedBy: doc.OwnerID, Timestamp: ts}}
	return nil
}
