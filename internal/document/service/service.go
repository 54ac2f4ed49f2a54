package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/document/repository"
	"github.com/codecollab/collab-server/internal/realtime"
	"github.com/codecollab/collab-server/internal/storage"
	"github.com/codecollab/collab-server/pkg/metrics"
)

// ErrExportDisabled is returned by Export when no object store is configured.
var ErrExportDisabled = fmt.Errorf("%w: export storage is not configured", document.ErrTransient)

// Directory resolves a username or email to a user id and looks up the
// public profiles shown next to owners and chat authors.
type Directory interface {
	Resolve(ctx context.Context, identifier string) (string, error)
	Profiles(ctx context.Context, ids []string) (map[string]document.Person, error)
}

// ObjectStore receives exported document content.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
}

// CreateInput carries the fields a client may set on a new document.
type CreateInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content"`
	Language string `json:"language" validate:"omitempty,max=40"`
}

type chatInput struct {
	Message string `validate:"required,max=4000"`
}

// Export describes an uploaded document snapshot.
type Export struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Service is the collaboration coordinator. Every entry point loads the
// document fresh and evaluates access before acting.
type Service struct {
	repo     repository.Repository
	users    Directory
	rooms    *realtime.Registry
	exports  ObjectStore
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func New(repo repository.Repository, users Directory, rooms *realtime.Registry, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		rooms:    rooms,
		validate: validator.New(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetExporter enables Export.
func (s *Service) SetExporter(store ObjectStore) {
	s.exports = store
}

func (s *Service) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", document.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", document.ErrValidation, err)
}

// load fetches the document and the caller's access in one step.
func (s *Service) load(ctx context.Context, id, userID string) (*document.Document, document.Access, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, document.Access{}, err
	}
	return doc, document.Evaluate(doc, userID), nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*document.Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		if in.Title == "" {
			return nil, document.ErrTitleRequired
		}
		return nil, s.validationError(err)
	}
	doc, err := s.repo.Create(ctx, &document.Document{
		Title:    in.Title,
		Content:  in.Content,
		Language: in.Language,
		OwnerID:  ownerID,
	})
	if err != nil {
		return nil, err
	}
	metrics.VersionsSaved.Inc()
	s.log.Info("document created", "document", doc.ID, "owner", ownerID)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*document.Document, error) {
	doc, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireRead(); err != nil {
		return nil, err
	}
	s.attachOwners(ctx, doc)
	return doc, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*document.Document, error) {
	docs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.attachOwners(ctx, docs...)
	return docs, nil
}

// Save stores content as a new version. Live participants are not notified;
// the room's unsaved draft is discarded so late joiners see the saved text.
func (s *Service) Save(ctx context.Context, id, content, editorID string) (*document.Document, error) {
	_, access, err := s.load(ctx, id, editorID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireWrite(); err != nil {
		return nil, err
	}
	doc, err := s.repo.Update(ctx, id, content, editorID)
	if err != nil {
		return nil, err
	}
	metrics.VersionsSaved.Inc()
	s.discardLive(doc)
	s.log.Debug("document saved", "document", id, "editor", editorID, "versions", len(doc.Versions))
	return doc, nil
}

// Revert rewinds content to a stored version without appending history.
// Live participants are not notified.
func (s *Service) Revert(ctx context.Context, id string, versionIndex int, userID string) (*document.Document, error) {
	_, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireWrite(); err != nil {
		return nil, err
	}
	doc, err := s.repo.Revert(ctx, id, versionIndex)
	if err != nil {
		return nil, err
	}
	s.discardLive(doc)
	return doc, nil
}

func (s *Service) discardLive(doc *document.Document) {
	if s.rooms.DiscardLive(doc.ID, doc.UpdatedAt) {
		s.log.Debug("live draft discarded", "document", doc.ID)
	}
}

func (s *Service) AddCollaborator(ctx context.Context, id, identifier, userID string) (*document.Document, error) {
	_, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireOwner(); err != nil {
		return nil, err
	}
	target, err := s.users.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.AddCollaborator(ctx, id, target)
	if err != nil {
		return nil, err
	}
	s.log.Info("collaborator added", "document", id, "user", target)
	return doc, nil
}

// RemoveCollaborator revokes access for subsequent requests. Open sessions
// of the removed user stay in the room.
func (s *Service) RemoveCollaborator(ctx context.Context, id, identifier, userID string) (*document.Document, error) {
	_, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireOwner(); err != nil {
		return nil, err
	}
	target, err := s.users.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.RemoveCollaborator(ctx, id, target)
	if err != nil {
		return nil, err
	}
	s.log.Info("collaborator removed", "document", id, "user", target)
	return doc, nil
}

func (s *Service) ChatHistory(ctx context.Context, id, userID string) ([]*document.ChatMessage, error) {
	_, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireRead(); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListChatMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attachAuthors(ctx, msgs)
	return msgs, nil
}

// Export uploads the saved content to object storage and returns a
// presigned download URL.
func (s *Service) Export(ctx context.Context, id, userID string) (*Export, error) {
	doc, access, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireRead(); err != nil {
		return nil, err
	}
	if s.exports == nil {
		return nil, ErrExportDisabled
	}
	key := storage.ExportKey(doc.ID, doc.Language, s.now())
	body := []byte(doc.Content)
	url, err := s.exports.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "text/plain; charset=utf-8")
	if err != nil {
		return nil, document.Transient("export", err)
	}
	return &Export{Key: key, URL: url}, nil
}

// attachOwners fills CreatedBy from the directory. A directory failure
// leaves the profiles out rather than failing the read.
func (s *Service) attachOwners(ctx context.Context, docs ...*document.Document) {
	people := s.profiles(ctx, lo.Map(docs, func(d *document.Document, _ int) string { return d.OwnerID }))
	for _, d := range docs {
		if p, ok := people[d.OwnerID]; ok {
			d.CreatedBy = &p
		}
	}
}

func (s *Service) attachAuthors(ctx context.Context, msgs []*document.ChatMessage) {
	people := s.profiles(ctx, lo.Map(msgs, func(m *document.ChatMessage, _ int) string { return m.User }))
	for _, m := range msgs {
		if p, ok := people[m.User]; ok {
			m.Author = &p
		}
	}
}

func (s *Service) profiles(ctx context.Context, ids []string) map[string]document.Person {
	if len(ids) == 0 {
		return nil
	}
	people, err := s.users.Profiles(ctx, ids)
	if err != nil {
		s.log.Warn("profile lookup failed", "error", err)
		return nil
	}
	return people
}
