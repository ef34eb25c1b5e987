package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretProvider retrieves configuration values by key. An unset key is
// reported as an empty string, not an error.
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)

	// Name returns the provider name for logging
	Name() string

	// IsAvailable reports whether this provider can be consulted at all
	IsAvailable(ctx context.Context) bool
}

// ChainProvider consults providers in order and returns the first non-empty
// value.
type ChainProvider struct {
	providers []SecretProvider
}

func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// GetSecret tries each available provider in order.
func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	value, _, err := c.Lookup(ctx, key)
	return value, err
}

// Lookup is GetSecret that also names the provider that answered.
func (c *ChainProvider) Lookup(ctx context.Context, key string) (string, string, error) {
	var lastErr error

	for _, provider := range c.providers {
		if !provider.IsAvailable(ctx) {
			continue
		}

		value, err := provider.GetSecret(ctx, key)
		if err == nil && value != "" {
			return value, provider.Name(), nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		return "", "", fmt.Errorf("all providers failed for %s, last error: %w", key, lastErr)
	}
	return "", "", nil
}

func (c *ChainProvider) Name() string {
	return "chain"
}

func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, provider := range c.providers {
		if provider.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// MapProvider serves fixed values. The CLI uses it for flag overrides.
type MapProvider map[string]string

func (m MapProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func (m MapProvider) Name() string { return "static" }

func (m MapProvider) IsAvailable(ctx context.Context) bool { return len(m) > 0 }

// EnvProvider reads environment variables.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

func (e *EnvProvider) Name() string { return "env" }

func (e *EnvProvider) IsAvailable(ctx context.Context) bool { return true }

// FileProvider reads one file per key from a mounted secrets directory.
// LLM_API_KEY is read from <dir>/llm-api-key.
type FileProvider struct {
	secretsPath string
}

func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{secretsPath: secretsPath}
}

func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", fmt.Errorf("secrets path not configured")
	}

	filename := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
	path := filepath.Join(f.secretsPath, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath == "" {
		return false
	}
	info, err := os.Stat(f.secretsPath)
	return err == nil && info.IsDir()
}

const serviceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"

// K8sProvider reads secrets mounted into a pod. It is only available when a
// service account token is present.
type K8sProvider struct {
	fileProvider *FileProvider
	namespace    string
	accountDir   string
}

// NewK8sProvider creates a provider for secretsPath (default /var/secrets).
// An empty namespace is detected from the service account.
func NewK8sProvider(secretsPath, namespace string) *K8sProvider {
	return newK8sProvider(secretsPath, namespace, serviceAccountDir)
}

func newK8sProvider(secretsPath, namespace, accountDir string) *K8sProvider {
	if secretsPath == "" {
		secretsPath = "/var/secrets"
	}
	if namespace == "" {
		namespace = "default"
		if ns, err := os.ReadFile(filepath.Join(accountDir, "namespace")); err == nil {
			if trimmed := strings.TrimSpace(string(ns)); trimmed != "" {
				namespace = trimmed
			}
		}
	}
	return &K8sProvider{
		fileProvider: NewFileProvider(secretsPath),
		namespace:    namespace,
		accountDir:   accountDir,
	}
}

func (k *K8sProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return k.fileProvider.GetSecret(ctx, key)
}

func (k *K8sProvider) Name() string { return "kubernetes" }

func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(k.accountDir, "token")); err != nil {
		return false
	}
	return k.fileProvider.IsAvailable(ctx)
}

// Namespace returns the pod namespace.
func (k *K8sProvider) Namespace() string {
	return k.namespace
}
