// Package ws is the WebSocket transport for chat sessions.
package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"stock-chat/backend/internal/chat"
	"stock-chat/backend/internal/store"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"
	"stock-chat/backend/pkg/middleware"
	proto "stock-chat/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config tunes per-connection behaviour
type Config struct {
	SendBuffer      int
	PublishRate     float64
	PublishBurst    int
	HistoryMaxLimit int
	MaxMessageSize  int64
	AllowedOrigins  []string
}

// DefaultConfig returns connection settings suitable for development
func DefaultConfig() Config {
	return Config{
		SendBuffer:      256,
		PublishRate:     5,
		PublishBurst:    10,
		HistoryMaxLimit: 500,
		MaxMessageSize:  64 * 1024,
		AllowedOrigins:  []string{"*"},
	}
}

// Handler upgrades authenticated requests and binds them to chat sessions
type Handler struct {
	hub        *Hub
	sessions   *chat.SessionManager
	dispatcher *chat.Dispatcher
	cfg        Config
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewHandler creates the /ws handler
func NewHandler(hub *Hub, sessions *chat.SessionManager, dispatcher *chat.Dispatcher, cfg Config, log *logger.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	h := &Handler{
		hub:        hub,
		sessions:   sessions,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.WithComponent("ws"),
	}
	origins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, origins, allowAll)
		},
	}
	return h
}

// ServeWs expects middleware.JWTAuth to have stored the caller identity
func (h *Handler) ServeWs(c *gin.Context) {
	identity := c.GetString(middleware.IdentityKey)
	if identity == "" {
		_ = c.Error(apperrors.NewUnauthorizedError("Authentication required"))
		c.Abort()
		return
	}

	sessionID, err := h.sessions.Connect(identity)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.sessions.Disconnect(sessionID)
		h.log.Debug("Upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		SessionID:  sessionID,
		Identity:   identity,
		conn:       conn,
		hub:        h.hub,
		sessions:   h.sessions,
		dispatcher: h.dispatcher,
		cfg:        h.cfg,
		send:       make(chan []byte, h.cfg.SendBuffer),
		log:        h.log.WithSessionID(sessionID).WithIdentity(identity),
	}
	if h.cfg.PublishRate > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.cfg.PublishRate), max(h.cfg.PublishBurst, 1))
	}

	h.hub.register(client)
	client.sendMessage(proto.TypeSession, "", proto.SessionInfo{ID: sessionID, Identity: identity})
	client.log.Info("Client connected")

	go client.WritePump()
	go client.ReadPump()
}

func normalize(topic string) string {
	return store.NormalizeTopic(topic)
}

func clampLimit(limit, maxLimit int) int {
	if maxLimit <= 0 {
		return limit
	}
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			allowed[n] = struct{}{}
		}
	}
	return allowed, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// originAllowed accepts non-browser clients, which send no Origin header
func originAllowed(r *http.Request, allowed map[string]struct{}, allowAll bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || allowAll {
		return true
	}
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, exists := allowed[n]
	return exists
}
