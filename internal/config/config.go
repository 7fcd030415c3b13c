package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingRequiredEnv = errors.New("missing required environment variable")
	ErrInvalidJWTSecret   = errors.New("JWT_SECRET must be at least 32 bytes")
	ErrInvalidBackend     = errors.New("invalid store backend")
)

// Store backends accepted by CREDENTIAL_STORE and POST_STORE.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port        string
	CORSOrigins []string

	MongoURI          string
	MongoDB           string
	MongoTransactions bool
	CredentialStore   string
	PostStore         string
	PostgresDSN       string

	RedisAddr        string
	RedisPassword    string
	LoginMaxAttempts int
	LoginWindow      time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	ReconcileInterval time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads the environment. JWT_SECRET is the only required key.
func Load() (*Config, error) {
	secret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(secret) < 32 {
		return nil, ErrInvalidJWTSecret
	}

	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		MongoURI:          getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getenv("MONGO_DB", "neftie"),
		MongoTransactions: getenv("MONGO_TRANSACTIONS", "false") == "true",
		CredentialStore:   getenv("CREDENTIAL_STORE", BackendMongo),
		PostStore:         getenv("POST_STORE", BackendMongo),
		PostgresDSN:       getenv("POSTGRES_DSN", ""),

		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		LoginMaxAttempts: getInt("LOGIN_MAX_ATTEMPTS", 10),
		LoginWindow:      getDuration("LOGIN_WINDOW", 15*time.Minute),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "post-attachments"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",

		JWTSecret:  secret,
		TokenTTL:   getDuration("TOKEN_TTL", 2*time.Hour),
		BcryptCost: getInt("BCRYPT_COST", 10),

		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 10*time.Minute),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogFile:   getenv("LOG_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CredentialStore {
	case BackendMongo, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN", ErrMissingRequiredEnv)
		}
	default:
		return fmt.Errorf("%w: CREDENTIAL_STORE=%q", ErrInvalidBackend, c.CredentialStore)
	}

	switch c.PostStore {
	case BackendMongo:
	case BackendMemory:
		if c.CredentialStore != BackendMemory {
			return fmt.Errorf("%w: POST_STORE=memory requires CREDENTIAL_STORE=memory", ErrInvalidBackend)
		}
	default:
		return fmt.Errorf("%w: POST_STORE=%q", ErrInvalidBackend, c.PostStore)
	}
	return nil
}

// UsesMongo reports whether any configured store needs a Mongo connection.
func (c *Config) UsesMongo() bool {
	return c.CredentialStore == BackendMongo || c.PostStore == BackendMongo
}

func mustEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredEnv, key)
	}
	return v, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
