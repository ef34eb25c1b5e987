package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TEST_SECRET", "test-value")

	provider := NewEnvProvider()

	t.Run("retrieves existing env var", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "TEST_SECRET")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "test-value" {
			t.Errorf("expected 'test-value', got '%s'", value)
		}
	})

	t.Run("returns empty for non-existent env var", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "VIEWPOINT_NON_EXISTENT")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "" {
			t.Errorf("expected empty string, got '%s'", value)
		}
	})

	t.Run("is always available", func(t *testing.T) {
		if !provider.IsAvailable(ctx) {
			t.Error("env provider should always be available")
		}
	})
}

func TestFileProvider(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "llm-api-key"), []byte("  sk-test-key\n"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	provider := NewFileProvider(tmpDir)

	t.Run("maps key to hyphenated lowercase filename and trims", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "LLM_API_KEY")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "sk-test-key" {
			t.Errorf("expected 'sk-test-key', got '%s'", value)
		}
	})

	t.Run("missing file is empty not an error", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "JWT_SECRET")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "" {
			t.Errorf("expected empty value, got '%s'", value)
		}
	})

	t.Run("unconfigured path is an error", func(t *testing.T) {
		if _, err := NewFileProvider("").GetSecret(ctx, "ANY"); err == nil {
			t.Error("expected error for empty secrets path")
		}
	})

	t.Run("availability follows the directory", func(t *testing.T) {
		if !provider.IsAvailable(ctx) {
			t.Error("provider should be available for an existing directory")
		}
		if NewFileProvider(filepath.Join(tmpDir, "missing")).IsAvailable(ctx) {
			t.Error("provider should not be available for a missing directory")
		}
	})
}

func TestChainProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("ENV_SECRET", "from-env")
	t.Setenv("SHARED_SECRET", "shared-from-env")

	tmpDir := t.TempDir()
	for name, value := range map[string]string{
		"file-secret":   "from-file",
		"shared-secret": "shared-from-file",
	} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(value), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	chain := NewChainProvider(NewFileProvider(tmpDir), NewEnvProvider())

	tests := []struct {
		key          string
		wantValue    string
		wantProvider string
	}{
		{"FILE_SECRET", "from-file", "file"},
		{"ENV_SECRET", "from-env", "env"},
		{"SHARED_SECRET", "shared-from-file", "file"},
		{"VIEWPOINT_UNSET_SECRET", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			value, from, err := chain.Lookup(ctx, tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value != tt.wantValue {
				t.Errorf("expected value '%s', got '%s'", tt.wantValue, value)
			}
			if from != tt.wantProvider {
				t.Errorf("expected provider '%s', got '%s'", tt.wantProvider, from)
			}
		})
	}

	t.Run("front providers override", func(t *testing.T) {
		overridden := NewChainProvider(MapProvider{"ENV_SECRET": "from-flag"}, NewEnvProvider())
		value, from, err := overridden.Lookup(ctx, "ENV_SECRET")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "from-flag" || from != "static" {
			t.Errorf("expected from-flag via static, got %s via %s", value, from)
		}
	})

	t.Run("unavailable providers are skipped", func(t *testing.T) {
		empty := NewChainProvider(NewFileProvider("/non/existent"), MapProvider{})
		if empty.IsAvailable(ctx) {
			t.Error("chain should not be available when no providers are available")
		}
		value, err := empty.GetSecret(ctx, "ANY_KEY")
		if err != nil || value != "" {
			t.Errorf("expected empty value and no error, got '%s', %v", value, err)
		}
	})
}

func TestK8sProvider(t *testing.T) {
	ctx := context.Background()

	newMount := func(t *testing.T, withToken bool, namespace string) (secrets, account string) {
		t.Helper()
		secrets = t.TempDir()
		account = t.TempDir()
		if withToken {
			if err := os.WriteFile(filepath.Join(account, "token"), []byte("token"), 0600); err != nil {
				t.Fatalf("failed to write token: %v", err)
			}
		}
		if namespace != "" {
			if err := os.WriteFile(filepath.Join(account, "namespace"), []byte(namespace+"\n"), 0600); err != nil {
				t.Fatalf("failed to write namespace: %v", err)
			}
		}
		return secrets, account
	}

	t.Run("reads mounted secrets when a token is present", func(t *testing.T) {
		secrets, account := newMount(t, true, "search")
		if err := os.WriteFile(filepath.Join(secrets, "db-password"), []byte("pg-secret"), 0600); err != nil {
			t.Fatalf("failed to write secret: %v", err)
		}

		provider := newK8sProvider(secrets, "", account)
		if !provider.IsAvailable(ctx) {
			t.Fatal("provider should be available with a service account token")
		}
		value, err := provider.GetSecret(ctx, "DB_PASSWORD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "pg-secret" {
			t.Errorf("expected 'pg-secret', got '%s'", value)
		}
		if provider.Namespace() != "search" {
			t.Errorf("expected namespace 'search', got '%s'", provider.Namespace())
		}
	})

	t.Run("unavailable without a token", func(t *testing.T) {
		secrets, account := newMount(t, false, "")
		if newK8sProvider(secrets, "", account).IsAvailable(ctx) {
			t.Error("provider should not be available without a token")
		}
	})

	t.Run("namespace defaults and explicit override", func(t *testing.T) {
		secrets, account := newMount(t, true, "")
		if ns := newK8sProvider(secrets, "", account).Namespace(); ns != "default" {
			t.Errorf("expected namespace 'default', got '%s'", ns)
		}
		if ns := newK8sProvider(secrets, "prod", account).Namespace(); ns != "prod" {
			t.Errorf("expected namespace 'prod', got '%s'", ns)
		}
	})
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("loads all configuration sections", func(t *testing.T) {
		loader := NewLoader(MapProvider{
			"DB_HOST":           "pg.internal",
			"DB_PORT":           "6432",
			"DB_PASSWORD":       "pg-pass",
			"REDIS_ADDR":        "cache:6379",
			"LLM_PROVIDER":      "OpenAI",
			"LLM_API_KEY":       "sk-test",
			"SEARCH_MODE":       "fallback_only",
			"SEARCH_TOP_K":      "25",
			"EXECUTION_TIMEOUT": "750ms",
			"VOCABULARY_PATH":   "/etc/viewpoints/vocabulary.yaml",
			"VOCABULARY_WATCH":  "false",
			"JWT_SECRET":        "test-jwt-secret-with-sufficient-length-32chars",
			"API_KEYS":          "ops:$2a$10$abc, ci:$2a$10$def ,",
			"RATE_LIMIT":        "50",
			"GIN_MODE":          "release",
			"LOG_LEVEL":         "debug",
		})

		cfg, err := loader.Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error loading config: %v", err)
		}

		if cfg.Database.Host != "pg.internal" || cfg.Database.Port != 6432 || cfg.Database.Password != "pg-pass" {
			t.Errorf("unexpected database config: %+v", cfg.Database)
		}
		if cfg.Redis.Addr != "cache:6379" {
			t.Errorf("expected Redis addr 'cache:6379', got '%s'", cfg.Redis.Addr)
		}
		if cfg.LLM.Provider != "openai" {
			t.Errorf("expected provider lowercased to 'openai', got '%s'", cfg.LLM.Provider)
		}
		if cfg.LLM.Model != "gpt-4o-mini" {
			t.Errorf("expected openai default model, got '%s'", cfg.LLM.Model)
		}
		if cfg.Search.Mode != "fallback_only" || cfg.Search.TopK != 25 {
			t.Errorf("unexpected search config: %+v", cfg.Search)
		}
		if cfg.Search.ExecutionTimeout != 750*time.Millisecond {
			t.Errorf("expected execution timeout 750ms, got %v", cfg.Search.ExecutionTimeout)
		}
		if cfg.Vocabulary.Watch {
			t.Error("expected vocabulary watch to be disabled")
		}
		if want := []string{"ops:$2a$10$abc", "ci:$2a$10$def"}; !reflect.DeepEqual(cfg.Auth.APIKeys, want) {
			t.Errorf("expected API keys %v, got %v", want, cfg.Auth.APIKeys)
		}
		if cfg.Auth.RateLimit != 50 {
			t.Errorf("expected rate limit 50, got %d", cfg.Auth.RateLimit)
		}
		if !cfg.IsProduction() {
			t.Error("expected release mode to count as production")
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
		}
	})

	t.Run("uses default values when nothing is set", func(t *testing.T) {
		cfg, err := NewLoader(MapProvider{}).Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
			t.Errorf("unexpected database defaults: %+v", cfg.Database)
		}
		if cfg.LLM.Provider != "claude" || cfg.LLM.Model != "claude-3-5-haiku-latest" {
			t.Errorf("unexpected LLM defaults: %+v", cfg.LLM)
		}
		if cfg.Search.Mode != "synthesize" || cfg.Search.MaxRows != 200 || cfg.Search.TopK != 10 {
			t.Errorf("unexpected search defaults: %+v", cfg.Search)
		}
		if cfg.Search.CacheTTL != 5*time.Minute {
			t.Errorf("expected cache TTL 5m, got %v", cfg.Search.CacheTTL)
		}
		if cfg.Server.Port != "8080" || cfg.Server.ShutdownTimeout != 15*time.Second {
			t.Errorf("unexpected server defaults: %+v", cfg.Server)
		}
		if cfg.Auth.APIKeys != nil {
			t.Errorf("expected no API keys, got %v", cfg.Auth.APIKeys)
		}
	})

	t.Run("unparseable values fall back to defaults", func(t *testing.T) {
		cfg, err := NewLoader(MapProvider{
			"DB_PORT":       "not-a-port",
			"REDIS_ENABLED": "maybe",
			"JWT_EXPIRY":    "soon",
		}).Load(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Database.Port != 5432 {
			t.Errorf("expected default port 5432, got %d", cfg.Database.Port)
		}
		if !cfg.Redis.Enabled {
			t.Error("expected redis to stay enabled")
		}
		if cfg.Auth.JWTExpiry != 24*time.Hour {
			t.Errorf("expected default JWT expiry 24h, got %v", cfg.Auth.JWTExpiry)
		}
	})

	t.Run("reads from environment through the default chain", func(t *testing.T) {
		t.Setenv("SEARCH_MAX_ROWS", "75")

		cfg := NewLoader(DefaultChain()).MustLoad(ctx)
		if cfg.Search.MaxRows != 75 {
			t.Errorf("expected max rows 75, got %d", cfg.Search.MaxRows)
		}
	})
}
