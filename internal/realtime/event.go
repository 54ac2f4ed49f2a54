package realtime

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	// client -> server
	EventJoinDocument  EventType = "joinDocument"
	EventLeaveDocument EventType = "leaveDocument"
	EventCodeChange    EventType = "codeChange"
	EventPing          EventType = "ping"

	// server -> client
	EventJoined     EventType = "joined"
	EventCodeUpdate EventType = "codeUpdate"
	EventError      EventType = "error"
	EventPong       EventType = "pong"

	// both directions
	EventChatMessage EventType = "chatMessage"
)

// Event is the websocket frame exchanged in both directions.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CodeChangePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

// ChatMessagePayload is sent by clients. User is accepted for wire
// compatibility but the verified identity is always used as author.
type ChatMessagePayload struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
	User       string `json:"user,omitempty"`
}

type ChatBroadcastPayload struct {
	Message   string    `json:"message"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// JoinedPayload answers joinDocument with the durable snapshot and, when the
// room has unsaved edits made since the last save or revert, the last
// broadcast content.
type JoinedPayload struct {
	DocumentID   string     `json:"documentId"`
	Title        string     `json:"title"`
	Language     string     `json:"language"`
	Content      string     `json:"content"`
	Versions     int        `json:"versions"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Live         *LiveState `json:"live,omitempty"`
	Participants int        `json:"participants"`
}

type ErrorPayload struct {
	Event EventType `json:"event,omitempty"`
	Error string    `json:"error"`
}

func NewEvent(t EventType, payload interface{}) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Event{Type: t, Timestamp: time.Now().UTC(), Payload: raw}, nil
}

func (e *Event) UnmarshalPayload(v interface{}) error {
	if e.Payload == nil {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Encode marshals the event once so it can be shared across send queues.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
