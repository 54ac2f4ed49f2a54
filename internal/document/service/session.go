package service

import (
	"context"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/realtime"
	"github.com/codecollab/collab-server/pkg/metrics"
)

// Join opens a live session: it loads the document, checks read access,
// adds p to the room and replies with a joined event carrying the saved
// snapshot plus any unsaved content currently circulating in the room.
func (s *Service) Join(ctx context.Context, p *realtime.Participant, documentID string) error {
	doc, access, err := s.load(ctx, documentID, p.UserID)
	if err != nil {
		return err
	}
	if err := access.RequireRead(); err != nil {
		return err
	}
	size := s.rooms.Join(documentID, p)
	payload := realtime.JoinedPayload{
		DocumentID:   doc.ID,
		Title:        doc.Title,
		Language:     doc.Language,
		Content:      doc.Content,
		Versions:     len(doc.Versions),
		UpdatedAt:    doc.UpdatedAt,
		Participants: size,
	}
	if live, ok := s.rooms.Live(documentID); ok {
		payload.Live = &live
	}
	s.log.Debug("participant joined", "document", documentID, "conn", p.ConnID, "user", p.UserID, "size", size)
	return send(p, realtime.EventJoined, payload)
}

// Leave reports whether p was in the room.
func (s *Service) Leave(p *realtime.Participant, documentID string) bool {
	return s.rooms.Leave(documentID, p)
}

// Disconnect removes p from every room it joined.
func (s *Service) Disconnect(p *realtime.Participant) []string {
	left := s.rooms.LeaveAll(p)
	if len(left) > 0 {
		s.log.Debug("participant disconnected", "conn", p.ConnID, "user", p.UserID, "rooms", len(left))
	}
	return left
}

// CodeChange fans content out to the rest of the room. Nothing is persisted;
// the room's live state tracks the last broadcast content until a save.
func (s *Service) CodeChange(_ context.Context, p *realtime.Participant, documentID, content string) error {
	if !s.rooms.IsMember(documentID, p) {
		return document.ErrNotInRoom
	}
	ev, err := realtime.NewEvent(realtime.EventCodeUpdate, content)
	if err != nil {
		return err
	}
	s.rooms.SetLive(documentID, content, p.UserID)
	s.rooms.Broadcast(documentID, ev, p)
	return nil
}

// ChatMessage persists the message and only then broadcasts it to the whole
// room, sender included. The author is always the verified participant.
func (s *Service) ChatMessage(ctx context.Context, p *realtime.Participant, documentID, text string) (*document.ChatMessage, error) {
	if !s.rooms.IsMember(documentID, p) {
		return nil, document.ErrNotInRoom
	}
	if err := s.validate.Struct(chatInput{Message: text}); err != nil {
		return nil, s.validationError(err)
	}
	_, access, err := s.load(ctx, documentID, p.UserID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireWrite(); err != nil {
		return nil, err
	}
	msg, err := s.repo.AppendChatMessage(ctx, documentID, p.UserID, text)
	if err != nil {
		return nil, err
	}
	metrics.ChatMessages.Inc()
	ev, err := realtime.NewEvent(realtime.EventChatMessage, realtime.ChatBroadcastPayload{
		Message:   msg.Message,
		User:      msg.User,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	s.rooms.BroadcastInclusive(documentID, ev)
	return msg, nil
}

func send(p *realtime.Participant, t realtime.EventType, payload interface{}) error {
	ev, err := realtime.NewEvent(t, payload)
	if err != nil {
		return err
	}
	b, err := ev.Encode()
	if err != nil {
		return err
	}
	p.Enqueue(b)
	return nil
}
