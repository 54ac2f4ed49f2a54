package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/document/service"
	"github.com/codecollab/collab-server/internal/realtime"
	"github.com/codecollab/collab-server/pkg/metrics"
	"github.com/codecollab/collab-server/pkg/middleware"
)

var errRateLimited = errors.New("rate limit exceeded")

// WSOptions configures accepted websocket connections.
type WSOptions struct {
	Conn      realtime.ConnConfig
	QueueSize int
	Overflow  realtime.OverflowPolicy
	// EventRPS caps codeChange and chatMessage per connection; 0 disables.
	EventRPS   float64
	EventBurst int
}

// WSHandler upgrades authenticated requests and feeds their events to the
// coordinator.
type WSHandler struct {
	svc      *service.Service
	verifier middleware.Verifier
	opts     WSOptions
	limits   *middleware.LimiterStore
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(svc *service.Service, verifier middleware.Verifier, opts WSOptions, log *slog.Logger) *WSHandler {
	h := &WSHandler{
		svc:      svc,
		verifier: verifier,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	if opts.EventRPS > 0 {
		burst := opts.EventBurst
		if burst <= 0 {
			burst = 1
		}
		h.limits = middleware.NewLimiterStore(opts.EventRPS, burst)
	}
	return h
}

// credential reads the token from the query string or the Authorization header.
func credential(c *gin.Context) string {
	if tok := strings.TrimSpace(c.Query("token")); tok != "" {
		return tok
	}
	tok, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return tok
}

// Serve authenticates before upgrading; unauthenticated clients get a plain 401.
func (h *WSHandler) Serve(c *gin.Context) {
	raw := credential(c)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	_, userID, err := middleware.Identify(c.Request.Context(), h.verifier, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := realtime.NewParticipant(uuid.NewString(), userID, h.opts.QueueSize, h.opts.Overflow)
	client := realtime.NewClient(p, conn, h, h.opts.Conn, h.log)
	metrics.ConnectionsOpen.Inc()
	h.log.Debug("websocket connected", "conn", p.ConnID, "user", userID)
	// the request context ends with the handler; the connection outlives it
	client.Serve(context.Background())
}

// HandleEvent dispatches one client event. Failures are reported to the
// sender as error events and never reach the room.
func (h *WSHandler) HandleEvent(ctx context.Context, p *realtime.Participant, ev *realtime.Event) error {
	err := h.dispatch(ctx, p, ev)
	if err != nil {
		h.reply(p, realtime.EventError, realtime.ErrorPayload{Event: ev.Type, Error: errorText(err)})
	}
	return err
}

func (h *WSHandler) dispatch(ctx context.Context, p *realtime.Participant, ev *realtime.Event) error {
	switch ev.Type {
	case realtime.EventJoinDocument:
		documentID, err := documentIDFrom(ev)
		if err != nil {
			return err
		}
		return h.svc.Join(ctx, p, documentID)

	case realtime.EventLeaveDocument:
		documentID, err := documentIDFrom(ev)
		if err != nil {
			return err
		}
		h.svc.Leave(p, documentID)
		return nil

	case realtime.EventCodeChange:
		var in realtime.CodeChangePayload
		if err := ev.UnmarshalPayload(&in); err != nil || in.DocumentID == "" {
			return document.ErrValidation
		}
		if !h.allow(p) {
			return errRateLimited
		}
		return h.svc.CodeChange(ctx, p, in.DocumentID, in.Content)

	case realtime.EventChatMessage:
		var in realtime.ChatMessagePayload
		if err := ev.UnmarshalPayload(&in); err != nil || in.DocumentID == "" {
			return document.ErrValidation
		}
		if !h.allow(p) {
			return errRateLimited
		}
		_, err := h.svc.ChatMessage(ctx, p, in.DocumentID, in.Message)
		return err

	case realtime.EventPing:
		h.reply(p, realtime.EventPong, nil)
		return nil
	}
	return errors.New("unknown event type " + string(ev.Type))
}

func (h *WSHandler) Disconnect(p *realtime.Participant) {
	metrics.ConnectionsOpen.Dec()
	h.svc.Disconnect(p)
	if h.limits != nil {
		h.limits.Forget(p.ConnID)
	}
	h.log.Debug("websocket disconnected", "conn", p.ConnID, "user", p.UserID)
}

func (h *WSHandler) allow(p *realtime.Participant) bool {
	if h.limits == nil {
		return true
	}
	return h.limits.Get(p.ConnID).Allow()
}

func (h *WSHandler) reply(p *realtime.Participant, t realtime.EventType, payload interface{}) {
	ev, err := realtime.NewEvent(t, payload)
	if err != nil {
		return
	}
	if b, err := ev.Encode(); err == nil {
		p.Enqueue(b)
	}
}

// documentIDFrom accepts either a bare string payload or {"documentId": ...}.
func documentIDFrom(ev *realtime.Event) (string, error) {
	var id string
	if err := json.Unmarshal(ev.Payload, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(ev.Payload, &obj); err == nil && obj.DocumentID != "" {
		return obj.DocumentID, nil
	}
	return "", errors.New("documentId is required")
}

func errorText(err error) string {
	if errors.Is(err, document.ErrTransient) {
		return "temporarily unavailable"
	}
	if err == document.ErrValidation {
		return "invalid payload"
	}
	return document.Message(err)
}
