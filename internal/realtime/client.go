package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// MessageHandler receives decoded client events and the disconnect signal.
type MessageHandler interface {
	HandleEvent(ctx context.Context, p *Participant, ev *Event) error
	Disconnect(p *Participant)
}

type ConnConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// Client binds a Participant to a websocket connection.
type Client struct {
	Participant *Participant

	conn    *websocket.Conn
	handler MessageHandler
	cfg     ConnConfig
	log     *slog.Logger
}

func NewClient(p *Participant, conn *websocket.Conn, handler MessageHandler, cfg ConnConfig, log *slog.Logger) *Client {
	return &Client{Participant: p, conn: conn, handler: handler, cfg: cfg, log: log.With("conn", p.ConnID, "user", p.UserID)}
}

// Serve runs the write loop in a new goroutine and the read loop on the
// caller's goroutine. It returns once the connection is gone.
func (c *Client) Serve(ctx context.Context) {
	go c.WritePump()
	c.ReadPump(ctx)
}

// ReadPump decodes one event per text frame and hands it to the handler.
// Events from a single connection are handled in arrival order.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.handler.Disconnect(c.Participant)
		c.Participant.Close()
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}
		if c.Participant.Closed() {
			return
		}
		// any inbound frame proves liveness
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Type == "" {
			c.sendError("", "malformed event")
			continue
		}
		if err := c.handler.HandleEvent(ctx, c.Participant, &ev); err != nil {
			c.log.Debug("event rejected", "event", ev.Type, "error", err)
		}
	}
}

// WritePump writes queued events, one frame each, and keeps the connection
// alive with pings. A closed queue ends the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	out := c.Participant.Outbound()
	for {
		select {
		case message, ok := <-out:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(event EventType, msg string) {
	ev, err := NewEvent(EventError, ErrorPayload{Event: event, Error: msg})
	if err != nil {
		return
	}
	if b, err := ev.Encode(); err == nil {
		c.Participant.Enqueue(b)
	}
}
