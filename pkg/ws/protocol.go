// Package ws defines the JSON frames exchanged over the chat WebSocket.
package ws

import (
	"encoding/json"
	"fmt"

	"stock-chat/backend/internal/models"
)

// Client to server frame types
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypePublish = "publish"
	TypeHistory = "history"
	TypePing    = "ping"
)

// Server to client frame types. TypeHistory is shared with the request.
const (
	TypeSession = "session"
	TypeJoined  = "joined"
	TypeLeft    = "left"
	TypeMessage = "message"
	TypeError   = "error"
	TypePong    = "pong"
)

// Envelope is an inbound frame. Content is decoded once Type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Frame is an outbound frame
type Frame struct {
	Type    string      `json:"type"`
	Ref     string      `json:"ref,omitempty"`
	Content interface{} `json:"content,omitempty"`
}

// TopicRequest is the content of join and leave
type TopicRequest struct {
	Topic string `json:"topic"`
}

// PublishRequest is the content of publish
type PublishRequest struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// HistoryRequest is the content of an on-demand history read
type HistoryRequest struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit,omitempty"`
}

// SessionInfo is sent once right after the upgrade
type SessionInfo struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
}

// TopicAck confirms join and leave
type TopicAck struct {
	Topic string `json:"topic"`
}

// HistoryBatch carries replayed or requested history, oldest first
type HistoryBatch struct {
	Topic    string           `json:"topic"`
	Messages []models.Message `json:"messages"`
}

// ErrorBody is the content of an error frame
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Encode marshals an outbound frame
func Encode(frameType, ref string, content interface{}) ([]byte, error) {
	return json.Marshal(Frame{Type: frameType, Ref: ref, Content: content})
}

// DecodeContent unmarshals the envelope content into v
func (e Envelope) DecodeContent(v interface{}) error {
	if len(e.Content) == 0 {
		return fmt.Errorf("%s frame has no content", e.Type)
	}
	return json.Unmarshal(e.Content, v)
}
