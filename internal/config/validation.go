package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields lists the offending fields in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

func (e *ValidationErrors) add(field, format string, args ...interface{}) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	c.validateDatabase(&errs)
	c.validateRedis(&errs)
	c.validateSearch(&errs)
	c.validateLLM(&errs)
	c.validateAuth(&errs)
	c.validateServer(&errs)
	c.validateLog(&errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c *Config) validateDatabase(errs *ValidationErrors) {
	if c.Database.Host == "" {
		errs.add("Database.Host", "database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs.add("Database.Port", "database port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.Database == "" {
		errs.add("Database.Database", "database name is required")
	}
	if c.Database.Username == "" {
		errs.add("Database.Username", "database username is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		errs.add("Database.MaxIdleConns", "max idle connections (%d) exceeds max open connections (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
}

func (c *Config) validateRedis(errs *ValidationErrors) {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs.add("Redis.Addr", "redis address is required when the cache is enabled")
	}
}

func (c *Config) validateSearch(errs *ValidationErrors) {
	s := c.Search

	switch s.Mode {
	case "synthesize", "fallback_only":
	default:
		errs.add("Search.Mode", "invalid search mode: %s (must be 'synthesize' or 'fallback_only')", s.Mode)
	}
	if s.MaxRows <= 0 {
		errs.add("Search.MaxRows", "max rows must be positive")
	}
	if s.TopK <= 0 {
		errs.add("Search.TopK", "top-k must be positive")
	} else if s.MaxRows > 0 && s.TopK > s.MaxRows {
		errs.add("Search.TopK", "top-k (%d) cannot exceed max rows (%d)", s.TopK, s.MaxRows)
	}
	if s.SynthesisTimeout <= 0 {
		errs.add("Search.SynthesisTimeout", "synthesis timeout must be positive")
	}
	if s.ExecutionTimeout <= 0 {
		errs.add("Search.ExecutionTimeout", "execution timeout must be positive")
	}
	if s.EnrichmentTimeout <= 0 {
		errs.add("Search.EnrichmentTimeout", "enrichment timeout must be positive")
	}
	if s.AuditTimeout <= 0 {
		errs.add("Search.AuditTimeout", "audit timeout must be positive")
	}
	if s.MaxAttempts < 1 {
		errs.add("Search.MaxAttempts", "max attempts must be at least 1")
	}
	if s.CacheTTL < 0 {
		errs.add("Search.CacheTTL", "cache TTL must be non-negative")
	}
}

// validateLLM only applies when searches may call the generative service.
func (c *Config) validateLLM(errs *ValidationErrors) {
	if c.Search.Mode != "synthesize" {
		return
	}

	switch c.LLM.Provider {
	case "claude", "openai":
	default:
		errs.add("LLM.Provider", "invalid LLM provider: %s (must be 'claude' or 'openai')", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		errs.add("LLM.APIKey", "LLM API key is required in synthesize mode")
	}
	if c.LLM.Model == "" {
		errs.add("LLM.Model", "LLM model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		errs.add("LLM.MaxTokens", "max tokens must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		errs.add("LLM.MaxRetries", "max retries must be non-negative")
	}
	if c.LLM.RequestTimeout <= 0 {
		errs.add("LLM.RequestTimeout", "request timeout must be positive")
	}
}

func (c *Config) validateAuth(errs *ValidationErrors) {
	a := c.Auth
	if !a.Enabled {
		return
	}

	if a.JWTSecret == "" && len(a.APIKeys) == 0 && !a.AllowAnonymous {
		errs.add("Auth", "authentication is enabled but neither a JWT secret nor API keys are configured")
	}
	if a.JWTExpiry <= 0 {
		errs.add("Auth.JWTExpiry", "JWT expiry must be positive")
	}
	for i, entry := range a.APIKeys {
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" {
			errs.add(fmt.Sprintf("Auth.APIKeys[%d]", i), "API key entry must be name:bcrypt-hash")
			continue
		}
		if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") && !strings.HasPrefix(hash, "$2y$") {
			errs.add(fmt.Sprintf("Auth.APIKeys[%d]", i), "API key %q is not a bcrypt hash", name)
		}
	}
	if a.RateLimit < 0 {
		errs.add("Auth.RateLimit", "rate limit must be non-negative")
	}
	if a.RateBurst < 0 {
		errs.add("Auth.RateBurst", "rate burst must be non-negative")
	}
}

func (c *Config) validateServer(errs *ValidationErrors) {
	if c.Server.Port == "" {
		errs.add("Server.Port", "server port is required")
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errs.add("Server.GinMode", "invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode)
	}
}

func (c *Config) validateLog(errs *ValidationErrors) {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.add("Log.Level", "invalid log level: %s", c.Log.Level)
	}
}

// ValidateProduction checks for insecure values that must not reach a
// release deployment.
func (c *Config) ValidateProduction() error {
	var errs ValidationErrors

	if c.Database.Password == "" || c.Database.Password == "changeme" {
		errs.add("Database.Password", "production deployment must not use default or empty database password")
	}
	if c.Redis.Enabled && (c.Redis.Password == "" || c.Redis.Password == "changeme") {
		errs.add("Redis.Password", "production deployment must not use default or empty Redis password")
	}

	insecureJWTSecrets := map[string]bool{
		"change-this-in-production": true,
		"secret":                    true,
		"jwt-secret":                true,
	}
	if c.Auth.JWTSecret != "" {
		if insecureJWTSecrets[c.Auth.JWTSecret] {
			errs.add("Auth.JWTSecret", "production deployment must not use default or insecure JWT secret")
		} else if len(c.Auth.JWTSecret) < 32 {
			errs.add("Auth.JWTSecret", "JWT secret should be at least 32 characters for production use")
		}
	}

	if !c.Auth.Enabled {
		errs.add("Auth.Enabled", "production deployment must enable authentication")
	}
	if c.Auth.AllowAnonymous {
		errs.add("Auth.AllowAnonymous", "production deployment should not allow anonymous access")
	}
	if c.Server.GinMode != "release" {
		errs.add("Server.GinMode", "production deployment should use 'release' mode")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// IsProduction reports whether gin runs in release mode.
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}
	return nil
}
