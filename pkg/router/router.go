package router

import (
	"net/http"
	"strings"

	"stock-chat/backend/internal/api"
	"stock-chat/backend/pkg/config"
	"stock-chat/backend/pkg/di"
	"stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"
	"stock-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	metrics     http.Handler
	rateLimiter *middleware.RateLimiter
	wsLimiter   *middleware.RateLimiter
}

// New creates the gin engine with the global middleware chain. metrics, when
// not nil, is served at /metrics.
func New(container *di.Container, metrics http.Handler) *Router {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	r := &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		metrics:   metrics,
	}

	if cfg.Security.RateLimit > 0 {
		opts := middleware.DefaultRateLimiterOptions()
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
		opts.Burst = max(cfg.Security.RateLimitBurst, 1)
		r.rateLimiter = middleware.NewRateLimiter(container.Logger, opts)
		engine.Use(r.rateLimiter.Middleware())
		// upgrades are also budgeted per identity once JWTAuth has run
		r.wsLimiter = middleware.NewRateLimiter(container.Logger, opts)
	}

	// middleware must be in place before any route is registered
	if cfg.OpenAPI.SchemaPath != "" {
		r.AddOpenAPIValidation(cfg.OpenAPI.SchemaPath)
	}

	return r
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	jwtAuth := middleware.JWTAuth(c.JWTService)

	healthHandler := api.NewHealthHandler(c.Health, c.Sessions.Count)
	messageController := api.NewMessageController(c.Dispatcher, r.Config.Chat.HistoryMaxLimit)

	healthHandler.RegisterHealthRoutes(r.Engine)
	if r.metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.metrics))
	}

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")
	healthHandler.RegisterHealthRoutes(v1)
	messageController.RegisterRoutesV1(v1)

	// History stays public at its original path
	messageController.RegisterRoutes(r.Engine)

	wsChain := []gin.HandlerFunc{jwtAuth}
	if r.wsLimiter != nil {
		wsChain = append(wsChain, r.wsLimiter.Middleware())
	}
	r.Engine.GET("/ws", append(wsChain, c.WSHandler.ServeWs)...)
}

// Close stops background work owned by the router
func (r *Router) Close() {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
	if r.wsLimiter != nil {
		r.wsLimiter.Stop()
	}
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// corsMiddleware echoes allowed origins and lets WebSocket upgrade headers through
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
