package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "viewpoints",
			Username:     "viewpoint_reader",
			Password:     "a-strong-database-password",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 10,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "a-strong-redis-password",
		},
		LLM: LLMConfig{
			Provider:       "claude",
			APIKey:         "sk-ant-test",
			Model:          "claude-3-5-haiku-latest",
			MaxTokens:      512,
			MaxRetries:     2,
			RequestTimeout: 8 * time.Second,
		},
		Search: SearchConfig{
			Mode:              "synthesize",
			MaxRows:           200,
			TopK:              10,
			SynthesisTimeout:  10 * time.Second,
			ExecutionTimeout:  5 * time.Second,
			EnrichmentTimeout: 2 * time.Second,
			AuditTimeout:      2 * time.Second,
			MaxAttempts:       3,
			CacheTTL:          5 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled:   true,
			JWTSecret: "a-jwt-secret-that-is-long-enough-for-prod",
			JWTIssuer: "viewpoint-search",
			JWTExpiry: 24 * time.Hour,
			APIKeys:   []string{"ops:$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZsDAwDG6DY5y6v7Dr.Qv1e"},
			RateLimit: 60,
			RateBurst: 10,
		},
		Server: ServerConfig{
			Port:            "8080",
			GinMode:         "debug",
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	return verrs.Fields()
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantFields []string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:       "missing database host",
			mutate:     func(c *Config) { c.Database.Host = "" },
			wantFields: []string{"Database.Host"},
		},
		{
			name:       "database port out of range",
			mutate:     func(c *Config) { c.Database.Port = 70000 },
			wantFields: []string{"Database.Port"},
		},
		{
			name:       "idle connections exceed open connections",
			mutate:     func(c *Config) { c.Database.MaxIdleConns = 50 },
			wantFields: []string{"Database.MaxIdleConns"},
		},
		{
			name:       "cache enabled without address",
			mutate:     func(c *Config) { c.Redis.Addr = "" },
			wantFields: []string{"Redis.Addr"},
		},
		{
			name: "cache disabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = false
				c.Redis.Addr = ""
			},
		},
		{
			name:       "unknown search mode",
			mutate:     func(c *Config) { c.Search.Mode = "freestyle" },
			wantFields: []string{"Search.Mode"},
		},
		{
			name:       "top-k above max rows",
			mutate:     func(c *Config) { c.Search.TopK = 500 },
			wantFields: []string{"Search.TopK"},
		},
		{
			name: "non-positive timeouts",
			mutate: func(c *Config) {
				c.Search.ExecutionTimeout = 0
				c.Search.AuditTimeout = -time.Second
			},
			wantFields: []string{"Search.ExecutionTimeout", "Search.AuditTimeout"},
		},
		{
			name:       "synthesize mode needs an API key",
			mutate:     func(c *Config) { c.LLM.APIKey = "" },
			wantFields: []string{"LLM.APIKey"},
		},
		{
			name:       "unknown LLM provider",
			mutate:     func(c *Config) { c.LLM.Provider = "mystery" },
			wantFields: []string{"LLM.Provider"},
		},
		{
			name: "fallback only mode ignores LLM settings",
			mutate: func(c *Config) {
				c.Search.Mode = "fallback_only"
				c.LLM = LLMConfig{}
			},
		},
		{
			name: "auth enabled without credentials",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
				c.Auth.APIKeys = nil
			},
			wantFields: []string{"Auth"},
		},
		{
			name: "auth without credentials but anonymous allowed",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
				c.Auth.APIKeys = nil
				c.Auth.AllowAnonymous = true
			},
		},
		{
			name:       "API key without bcrypt hash",
			mutate:     func(c *Config) { c.Auth.APIKeys = []string{"ops:plaintext"} },
			wantFields: []string{"Auth.APIKeys[0]"},
		},
		{
			name:       "API key without name",
			mutate:     func(c *Config) { c.Auth.APIKeys = []string{"$2a$10$abc"} },
			wantFields: []string{"Auth.APIKeys[0]"},
		},
		{
			name:       "invalid gin mode",
			mutate:     func(c *Config) { c.Server.GinMode = "prod" },
			wantFields: []string{"Server.GinMode"},
		},
		{
			name:       "invalid log level",
			mutate:     func(c *Config) { c.Log.Level = "verbose" },
			wantFields: []string{"Log.Level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected errors on %v, got none", tt.wantFields)
			}

			got := fieldsOf(t, err)
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("expected fields %v, got %v", tt.wantFields, got)
			}
		})
	}

	t.Run("collects every error", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Host = ""
		cfg.Search.MaxAttempts = 0
		cfg.Server.Port = ""

		err := cfg.Validate()
		if got := fieldsOf(t, err); len(got) != 3 {
			t.Errorf("expected 3 errors, got %v", got)
		}
		if !strings.Contains(err.Error(), "3 validation error(s)") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}

func TestProductionValidation(t *testing.T) {
	production := func() *Config {
		cfg := validConfig()
		cfg.Server.GinMode = "release"
		return cfg
	}

	tests := []struct {
		name       string
		mutate     func(c *Config)
		wantFields []string
	}{
		{
			name:   "secure production configuration",
			mutate: func(c *Config) {},
		},
		{
			name:       "default database password",
			mutate:     func(c *Config) { c.Database.Password = "changeme" },
			wantFields: []string{"Database.Password"},
		},
		{
			name:       "empty redis password",
			mutate:     func(c *Config) { c.Redis.Password = "" },
			wantFields: []string{"Redis.Password"},
		},
		{
			name: "redis password ignored when cache disabled",
			mutate: func(c *Config) {
				c.Redis.Enabled = false
				c.Redis.Password = ""
			},
		},
		{
			name:       "well-known JWT secret",
			mutate:     func(c *Config) { c.Auth.JWTSecret = "secret" },
			wantFields: []string{"Auth.JWTSecret"},
		},
		{
			name:       "short JWT secret",
			mutate:     func(c *Config) { c.Auth.JWTSecret = "short-but-not-default" },
			wantFields: []string{"Auth.JWTSecret"},
		},
		{
			name:       "authentication disabled",
			mutate:     func(c *Config) { c.Auth.Enabled = false },
			wantFields: []string{"Auth.Enabled"},
		},
		{
			name:       "anonymous access",
			mutate:     func(c *Config) { c.Auth.AllowAnonymous = true },
			wantFields: []string{"Auth.AllowAnonymous"},
		},
		{
			name:       "debug gin mode",
			mutate:     func(c *Config) { c.Server.GinMode = "debug" },
			wantFields: []string{"Server.GinMode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := production()
			tt.mutate(cfg)

			err := cfg.ValidateProduction()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			got := fieldsOf(t, err)
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("expected fields %v, got %v", tt.wantFields, got)
			}
		})
	}

	t.Run("ValidateWithContext runs production checks in release mode", func(t *testing.T) {
		cfg := production()
		cfg.Database.Password = ""

		err := cfg.ValidateWithContext()
		if err == nil {
			t.Fatal("expected production validation to fail")
		}
		if !strings.Contains(err.Error(), "production validation failed") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ValidateWithContext skips production checks in debug mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Password = ""

		if err := cfg.ValidateWithContext(); err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
	})
}

func TestIsProduction(t *testing.T) {
	for mode, want := range map[string]bool{"release": true, "debug": false, "test": false} {
		cfg := validConfig()
		cfg.Server.GinMode = mode
		if got := cfg.IsProduction(); got != want {
			t.Errorf("IsProduction() with mode %s = %v, want %v", mode, got, want)
		}
	}
}
