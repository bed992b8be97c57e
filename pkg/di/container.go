package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-chat/backend/internal/chat"
	"stock-chat/backend/internal/store"
	"stock-chat/backend/internal/ws"
	"stock-chat/backend/pkg/config"
	"stock-chat/backend/pkg/health"
	"stock-chat/backend/pkg/jwt"
	"stock-chat/backend/pkg/logger"
	"stock-chat/backend/pkg/resilience"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// TokenExpiry is the lifetime of tokens minted by the JWT service
const TokenExpiry = 24 * time.Hour

// Container holds all the dependencies for the application
type Container struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Store      store.Store
	Breaker    *resilience.CircuitBreaker
	Registry   *chat.Registry
	Hub        *ws.Hub
	Sessions   *chat.SessionManager
	Dispatcher *chat.Dispatcher
	WSHandler  *ws.Handler
	JWTService *jwt.Service
	Health     *health.Checker
}

// New opens the configured backends and assembles the chat core on top of them
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	validator := store.NewValidator(cfg.Chat.MaxContentLength)
	c := &Container{Config: cfg, Logger: log}

	durable, err := c.openStore(ctx, validator)
	if err != nil {
		return nil, err
	}

	var st store.Store = durable
	if cfg.Redis.Enabled {
		c.Redis = store.NewRedisClient(store.RedisConfig{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st = store.NewCachedStore(durable, c.Redis, cfg.Redis.HistorySize, cfg.Redis.TTL, log)
		log.Info("Redis history cache enabled", "addr", cfg.Redis.URL, "size", cfg.Redis.HistorySize)
	}

	c.assemble(st, validator)
	return c, nil
}

// NewWithStore assembles the chat core on an already opened store
func NewWithStore(cfg *config.Config, st store.Store, log *logger.Logger) *Container {
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Container{Config: cfg, Logger: log}
	c.assemble(st, store.NewValidator(cfg.Chat.MaxContentLength))
	return c
}

func (c *Container) openStore(ctx context.Context, v store.Validator) (store.Store, error) {
	cfg := c.Config
	switch cfg.Database.Driver {
	case config.DriverMemory:
		c.Logger.Warn("Using in-memory message store, history is lost on restart")
		return store.NewMemoryStore(v), nil

	case config.DriverMongo:
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:              cfg.Database.MongoURI,
			Database:         cfg.Database.MongoDatabase,
			OperationTimeout: cfg.Database.Timeout,
		}, v)

	case config.DriverPostgres, config.DriverSQLite:
		db, err := config.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		c.DB = db
		return store.NewGormStore(db, v)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (c *Container) assemble(st store.Store, v store.Validator) {
	cfg := c.Config

	c.Breaker = resilience.NewCircuitBreaker(store.NewBreakerConfig("message-store"), c.Logger)
	c.Store = store.WithBreaker(st, c.Breaker)

	c.Registry = chat.NewRegistry()
	c.Hub = ws.NewHub(c.Logger)
	c.Sessions = chat.NewSessionManager(chat.Config{
		MaxSessions:  cfg.Chat.MaxSessions,
		IdleTimeout:  cfg.Chat.IdleTimeout,
		ReapInterval: cfg.Chat.ReapInterval,
		ReplayLimit:  cfg.Chat.ReplayLimit,
	}, c.Store, v, c.Registry, c.Hub, c.Logger)
	c.Dispatcher = chat.NewDispatcher(c.Sessions)

	wsCfg := ws.DefaultConfig()
	wsCfg.SendBuffer = cfg.Chat.SendBuffer
	wsCfg.PublishRate = cfg.Chat.PublishRate
	wsCfg.PublishBurst = cfg.Chat.PublishBurst
	wsCfg.HistoryMaxLimit = cfg.Chat.HistoryMaxLimit
	wsCfg.AllowedOrigins = cfg.Security.AllowedOrigins
	c.WSHandler = ws.NewHandler(c.Hub, c.Sessions, c.Dispatcher, wsCfg, c.Logger)

	c.JWTService = jwt.NewService(cfg.JWT.Secret, TokenExpiry)

	c.Health = health.NewChecker(c.Logger, 15*time.Second)
	c.Health.RegisterPingCheck("store", true, c.Store.Ping)
	if c.Redis != nil {
		rdb := c.Redis
		c.Health.RegisterPingCheck("redis", false, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
}

// Close drains the sessions and releases the backends
func (c *Container) Close(ctx context.Context) error {
	c.Sessions.Close()
	c.Hub.Shutdown()

	var errs []error
	if err := c.Store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
