package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Supported message store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port            string
		GRPCPort        string
		Env             string
		Timeout         time.Duration
		ShutdownTimeout time.Duration
	}

	// Database configuration
	Database struct {
		Driver   string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
		// SQLitePath is used when Driver is sqlite
		SQLitePath string
		// MongoURI and MongoDatabase are used when Driver is mongo
		MongoURI      string
		MongoDatabase string
	}

	// Redis recent-history cache
	Redis struct {
		Enabled     bool
		URL         string
		Password    string
		DB          int
		HistorySize int
		TTL         time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret string
	}

	// Vault configuration
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		SecretsPath string
	}

	// Chat holds the messaging core limits
	Chat struct {
		MaxSessions      int
		MaxContentLength int
		IdleTimeout      time.Duration
		ReapInterval     time.Duration
		ReplayLimit      int
		HistoryMaxLimit  int
		SendBuffer       int
		PublishRate      float64
		PublishBurst     int
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability configuration
	Observability struct {
		TracingEnabled bool
		ServiceName    string
	}

	// OpenAPI request validation
	OpenAPI struct {
		SchemaPath string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "5001")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9094")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	// Database config
	cfg.Database.Driver = strings.ToLower(getEnvString("DB_DRIVER", DriverPostgres))
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "stock-chat")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.SQLitePath = getEnvString("DB_PATH", "stock-chat.db")
	cfg.Database.MongoURI = getEnvString("MONGO_URI", "mongodb://localhost:27017")
	cfg.Database.MongoDatabase = getEnvString("MONGO_DATABASE", "stockchat")

	// Redis config
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.URL = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.HistorySize = getEnvInt("REDIS_HISTORY_SIZE", 200)
	cfg.Redis.TTL = getEnvDuration("REDIS_TTL", 24*time.Hour)

	// JWT config
	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "http://localhost:8200")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "stock-chat")

	// Chat config
	cfg.Chat.MaxSessions = getEnvInt("CHAT_MAX_SESSIONS", 10000)
	cfg.Chat.MaxContentLength = getEnvInt("CHAT_MAX_CONTENT_LENGTH", 2000)
	cfg.Chat.IdleTimeout = getEnvDuration("CHAT_IDLE_TIMEOUT", 5*time.Minute)
	cfg.Chat.ReapInterval = getEnvDuration("CHAT_REAP_INTERVAL", 30*time.Second)
	cfg.Chat.ReplayLimit = getEnvInt("CHAT_REPLAY_LIMIT", 50)
	cfg.Chat.HistoryMaxLimit = getEnvInt("CHAT_HISTORY_MAX_LIMIT", 500)
	cfg.Chat.SendBuffer = getEnvInt("CHAT_SEND_BUFFER", 256)
	cfg.Chat.PublishRate = getEnvFloat("CHAT_PUBLISH_RATE", 5)
	cfg.Chat.PublishBurst = getEnvInt("CHAT_PUBLISH_BURST", 10)

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Observability config
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "stock-chat")

	cfg.OpenAPI.SchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	return cfg
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
