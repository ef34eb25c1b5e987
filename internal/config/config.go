package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Search     SearchConfig
	Vocabulary VocabularyConfig
	Schema     SchemaConfig
	Auth       AuthConfig
	Server     ServerConfig
	Log        LogConfig
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the result cache connection. A disabled cache skips
// Redis entirely.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LLMConfig holds the generative service used for query synthesis
type LLMConfig struct {
	Provider       string // "claude" or "openai"
	APIKey         string
	Model          string
	BaseURL        string
	MaxTokens      int
	MaxRetries     int
	RequestTimeout time.Duration
	BreakerTimeout time.Duration
}

// SearchConfig holds pipeline tunables
type SearchConfig struct {
	Mode              string // "synthesize" or "fallback_only"
	MaxRows           int
	TopK              int
	SynthesisTimeout  time.Duration
	ExecutionTimeout  time.Duration
	EnrichmentTimeout time.Duration
	AuditTimeout      time.Duration
	MaxAttempts       int
	CacheTTL          time.Duration
	ExamplesEnabled   bool
}

// VocabularyConfig points at the controlled vocabulary. An empty Path uses
// the embedded default.
type VocabularyConfig struct {
	Path  string
	Watch bool
}

// SchemaConfig points at the schema descriptor. An empty Path uses the
// embedded default.
type SchemaConfig struct {
	Path string
}

// AuthConfig holds authentication and rate limiting configuration
type AuthConfig struct {
	Enabled        bool
	JWTSecret      string
	JWTIssuer      string
	JWTExpiry      time.Duration
	APIKeys        []string // name:bcrypt-hash pairs
	RateLimit      int      // requests per minute per principal
	RateBurst      int
	AllowAnonymous bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{provider: provider}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. Kubernetes secrets (if available)
// 2. File-based secrets (if available)
// 3. Environment variables (fallback)
func NewDefaultLoader() *Loader {
	return NewLoader(DefaultChain())
}

// DefaultChain is the provider chain used by NewDefaultLoader. Callers may
// put their own providers in front of it.
func DefaultChain(front ...SecretProvider) *ChainProvider {
	providers := append([]SecretProvider{}, front...)
	providers = append(providers,
		NewK8sProvider("", ""),
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	)
	return NewChainProvider(providers...)
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		Host:            l.getString(ctx, "DB_HOST", "localhost"),
		Port:            l.getInt(ctx, "DB_PORT", 5432),
		Database:        l.getString(ctx, "DB_NAME", "viewpoints"),
		Username:        l.getString(ctx, "DB_USER", "viewpoint_reader"),
		Password:        l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:         l.getString(ctx, "DB_SSLMODE", "disable"),
		MaxOpenConns:    l.getInt(ctx, "DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    l.getInt(ctx, "DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: l.getDuration(ctx, "DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Enabled:  l.getBool(ctx, "REDIS_ENABLED", true),
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	provider := strings.ToLower(l.getString(ctx, "LLM_PROVIDER", "claude"))
	cfg.LLM = LLMConfig{
		Provider:       provider,
		APIKey:         l.getString(ctx, "LLM_API_KEY", ""),
		Model:          l.getString(ctx, "LLM_MODEL", defaultModel(provider)),
		BaseURL:        l.getString(ctx, "LLM_BASE_URL", ""),
		MaxTokens:      l.getInt(ctx, "LLM_MAX_TOKENS", 512),
		MaxRetries:     l.getInt(ctx, "LLM_MAX_RETRIES", 2),
		RequestTimeout: l.getDuration(ctx, "LLM_REQUEST_TIMEOUT", 8*time.Second),
		BreakerTimeout: l.getDuration(ctx, "LLM_BREAKER_TIMEOUT", 30*time.Second),
	}

	cfg.Search = SearchConfig{
		Mode:              l.getString(ctx, "SEARCH_MODE", "synthesize"),
		MaxRows:           l.getInt(ctx, "SEARCH_MAX_ROWS", 200),
		TopK:              l.getInt(ctx, "SEARCH_TOP_K", 10),
		SynthesisTimeout:  l.getDuration(ctx, "SYNTHESIS_TIMEOUT", 10*time.Second),
		ExecutionTimeout:  l.getDuration(ctx, "EXECUTION_TIMEOUT", 5*time.Second),
		EnrichmentTimeout: l.getDuration(ctx, "ENRICHMENT_TIMEOUT", 2*time.Second),
		AuditTimeout:      l.getDuration(ctx, "AUDIT_TIMEOUT", 2*time.Second),
		MaxAttempts:       l.getInt(ctx, "SEARCH_MAX_ATTEMPTS", 3),
		CacheTTL:          l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
		ExamplesEnabled:   l.getBool(ctx, "EXAMPLES_ENABLED", true),
	}

	cfg.Vocabulary = VocabularyConfig{
		Path:  l.getString(ctx, "VOCABULARY_PATH", ""),
		Watch: l.getBool(ctx, "VOCABULARY_WATCH", true),
	}

	cfg.Schema = SchemaConfig{
		Path: l.getString(ctx, "SCHEMA_PATH", ""),
	}

	cfg.Auth = AuthConfig{
		Enabled:        l.getBool(ctx, "AUTH_ENABLED", true),
		JWTSecret:      l.getString(ctx, "JWT_SECRET", ""),
		JWTIssuer:      l.getString(ctx, "JWT_ISSUER", "viewpoint-search"),
		JWTExpiry:      l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		APIKeys:        l.getSlice(ctx, "API_KEYS", nil),
		RateLimit:      l.getInt(ctx, "RATE_LIMIT", 60),
		RateBurst:      l.getInt(ctx, "RATE_BURST", 10),
		AllowAnonymous: l.getBool(ctx, "ALLOW_ANONYMOUS", false),
	}

	cfg.Server = ServerConfig{
		Port:            l.getString(ctx, "PORT", "8080"),
		GinMode:         l.getString(ctx, "GIN_MODE", "debug"),
		ShutdownTimeout: l.getDuration(ctx, "SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	cfg.Log = LogConfig{
		Level: l.getString(ctx, "LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return "gpt-4o-mini"
	}
	return "claude-3-5-haiku-latest"
}

// Helper methods for retrieving and parsing configuration values. A value
// that fails to parse falls back to the default.

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
