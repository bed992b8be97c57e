package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stock-chat/backend/internal/chat"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"
	proto "stock-chat/backend/pkg/ws"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for one inbound request to reach the store
	requestTimeout = 10 * time.Second
)

// Client binds one WebSocket connection to one chat session
type Client struct {
	SessionID string
	Identity  string

	conn       *websocket.Conn
	hub        *Hub
	sessions   *chat.SessionManager
	dispatcher *chat.Dispatcher
	limiter    *rate.Limiter
	cfg        Config
	log        *logger.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue hands a frame to the write pump. A full buffer closes the client so
// one slow reader never stalls a topic.
func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closed = true
		close(c.send)
		return errSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendMessage(frameType, ref string, content interface{}) {
	data, err := proto.Encode(frameType, ref, content)
	if err != nil {
		c.log.LogError(err, "Failed to encode frame", "type", frameType)
		return
	}
	_ = c.enqueue(data)
}

func (c *Client) sendError(ref string, err error) {
	appErr := apperrors.FromError(err)
	c.sendMessage(proto.TypeError, ref, proto.ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// ReadPump handles inbound frames in order until the connection drops, then
// disconnects the session.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.sessions.Disconnect(c.SessionID)
		c.close()
		_ = c.conn.Close()
		c.log.Debug("ReadPump ended")
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.sessions.Touch(c.SessionID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected close", "error", err.Error())
			}
			return
		}
		c.sessions.Touch(c.SessionID)
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("", apperrors.NewInvalidArgumentError("malformed frame"))
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env proto.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic while handling frame", "type", env.Type, "error", fmt.Sprint(r))
			c.sendError(env.Ref, apperrors.NewInternalServerError("internal error"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch env.Type {
	case proto.TypeJoin:
		var req proto.TopicRequest
		if err := env.DecodeContent(&req); err != nil {
			c.sendError(env.Ref, apperrors.NewInvalidArgumentError("join requires a topic"))
			return
		}
		// the ack is queued by the hub, ahead of live messages of the topic
		if err := c.sessions.JoinWithRef(ctx, c.SessionID, req.Topic, env.Ref); err != nil {
			c.sendError(env.Ref, err)
		}

	case proto.TypeLeave:
		var req proto.TopicRequest
		if err := env.DecodeContent(&req); err != nil {
			c.sendError(env.Ref, apperrors.NewInvalidArgumentError("leave requires a topic"))
			return
		}
		if err := c.sessions.Leave(c.SessionID, req.Topic); err != nil {
			c.sendError(env.Ref, err)
			return
		}
		c.sendMessage(proto.TypeLeft, env.Ref, proto.TopicAck{Topic: normalize(req.Topic)})

	case proto.TypePublish:
		var req proto.PublishRequest
		if err := env.DecodeContent(&req); err != nil {
			c.sendError(env.Ref, apperrors.NewInvalidArgumentError("publish requires topic and content"))
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError(env.Ref, apperrors.NewRateLimitedError("publishing too fast"))
			return
		}
		if _, err := c.dispatcher.Publish(ctx, c.SessionID, req.Topic, req.Content); err != nil {
			c.sendError(env.Ref, err)
		}

	case proto.TypeHistory:
		var req proto.HistoryRequest
		if err := env.DecodeContent(&req); err != nil {
			c.sendError(env.Ref, apperrors.NewInvalidArgumentError("history requires a topic"))
			return
		}
		msgs, err := c.dispatcher.History(ctx, req.Topic, clampLimit(req.Limit, c.cfg.HistoryMaxLimit))
		if err != nil {
			c.sendError(env.Ref, err)
			return
		}
		c.sendMessage(proto.TypeHistory, env.Ref, proto.HistoryBatch{Topic: normalize(req.Topic), Messages: msgs})

	case proto.TypePing:
		c.sendMessage(proto.TypePong, env.Ref, nil)

	default:
		c.sendError(env.Ref, apperrors.NewInvalidArgumentError(fmt.Sprintf("unknown frame type %q", env.Type)))
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
