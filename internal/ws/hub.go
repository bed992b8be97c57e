package ws

import (
	"errors"
	"sync"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/pkg/logger"
	proto "stock-chat/backend/pkg/ws"
)

var (
	errUnknownSession = errors.New("no connection for session")
	errClientClosed   = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Hub tracks live connections by session id and implements chat.Outbound
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logger.Logger
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.WithComponent("ws_hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.SessionID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.SessionID]; ok && cur == c {
		delete(h.clients, c.SessionID)
	}
	h.mu.Unlock()
}

func (h *Hub) client(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

func (h *Hub) send(sessionID, frameType, ref string, content interface{}) error {
	c, ok := h.client(sessionID)
	if !ok {
		return errUnknownSession
	}
	data, err := proto.Encode(frameType, ref, content)
	if err != nil {
		return err
	}
	if err := c.enqueue(data); err != nil {
		if errors.Is(err, errSendBufferFull) {
			h.log.Warn("Dropping slow client", "session_id", sessionID)
		}
		return err
	}
	return nil
}

// Deliver queues a live message for the session without blocking
func (h *Hub) Deliver(sessionID string, msg models.Message) error {
	return h.send(sessionID, proto.TypeMessage, "", msg)
}

// Replay queues the join history batch for the session
func (h *Hub) Replay(sessionID, topic string, msgs []models.Message) error {
	if msgs == nil {
		msgs = []models.Message{}
	}
	return h.send(sessionID, proto.TypeHistory, "", proto.HistoryBatch{Topic: topic, Messages: msgs})
}

// Joined queues the joined ack carrying the ref of the join request
func (h *Hub) Joined(sessionID, topic, ref string) error {
	return h.send(sessionID, proto.TypeJoined, ref, proto.TopicAck{Topic: topic})
}

// Release closes the connection of a session that was disconnected by the core
func (h *Hub) Release(sessionID string) {
	if c, ok := h.client(sessionID); ok {
		c.close()
	}
}

// Count returns the number of registered connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
