package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	// Client to server.
	MessageChat MessageType = "chat"
	MessageStop MessageType = "stop"

	// Server to client.
	MessageStarted MessageType = "started"
	MessageChunk   MessageType = "chunk"
	MessageDone    MessageType = "done"
	MessageError   MessageType = "error"
)

// Message is the envelope for server-to-client messages.
type Message struct {
	Type      MessageType `json:"type"`
	StreamID  string      `json:"stream_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      string      `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Details   []string    `json:"details,omitempty"`
}

// control is the part of a client message the read loop inspects.
type control struct {
	Type MessageType `json:"type"`
}
