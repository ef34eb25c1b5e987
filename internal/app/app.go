// Package app assembles the search pipeline from configuration. Both the
// HTTP server and the command line tool build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/viewpoint-search/internal/config"
	"github.com/seanankenbruck/viewpoint-search/internal/llm"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/schema"
	"github.com/seanankenbruck/viewpoint-search/internal/search"
	"github.com/seanankenbruck/viewpoint-search/internal/store"
	"github.com/seanankenbruck/viewpoint-search/internal/synth"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// App owns the long-lived resources behind a search Service.
type App struct {
	Config     *config.Config
	Service    *search.Service
	Vocabulary *vocabulary.Registry
	Schema     *schema.Descriptor
	Gate       *query.Gate

	DB      *sql.DB
	Redis   *redis.Client
	Breaker *llm.CircuitBreakerClient
}

// Options trims what Build wires. The command line tool uses them to run
// without the cache.
type Options struct {
	DisableCache bool
}

// LoadVocabulary reads the configured vocabulary file, or the embedded
// default when no path is set.
func LoadVocabulary(cfg config.VocabularyConfig) (*vocabulary.Snapshot, error) {
	if cfg.Path == "" {
		return vocabulary.Default(), nil
	}
	return vocabulary.LoadFile(cfg.Path)
}

// LoadSchema reads the configured schema descriptor, or the embedded default.
func LoadSchema(cfg config.SchemaConfig) (*schema.Descriptor, error) {
	if cfg.Path == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(cfg.Path)
}

// Offline builds the pieces that need no external service: vocabulary,
// schema and the gate.
func Offline(cfg *config.Config) (*vocabulary.Registry, *schema.Descriptor, *query.Gate, error) {
	vocab, err := LoadVocabulary(cfg.Vocabulary)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	desc, err := LoadSchema(cfg.Schema)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load schema descriptor: %w", err)
	}
	return vocabulary.NewRegistry(vocab), desc, query.NewGate(desc), nil
}

// Build connects to the datastore, the cache and the generative service
// and returns a ready Service. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (*App, error) {
	mode, err := search.ParseMode(cfg.Search.Mode)
	if err != nil {
		return nil, err
	}

	registry, desc, gate, err := Offline(cfg)
	if err != nil {
		return nil, err
	}
	fallback, err := query.NewFallbackBuilder(gate)
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback templates: %w", err)
	}

	a := &App{
		Config:     cfg,
		Vocabulary: registry,
		Schema:     desc,
		Gate:       gate,
	}

	a.DB, err = store.Open(ctx, store.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	var cache *search.Cache
	if cfg.Redis.Enabled && !opts.DisableCache {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		// An unreachable cache only costs latency.
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "Result cache unreachable at startup", map[string]interface{}{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			})
		}
		cache = search.NewCache(a.Redis, cfg.Search.CacheTTL)
	}

	var examples *store.ExampleStore
	if cfg.Search.ExamplesEnabled {
		examples = store.NewExampleStore(a.DB, llm.NewFeatureEmbedder())
	}

	deps := search.Dependencies{
		Vocabulary: registry,
		Schema:     desc,
		Gate:       gate,
		Fallback:   fallback,
		Executor:   store.NewExecutor(a.DB, cfg.Search.ExecutionTimeout),
		Enricher:   store.NewEnricher(a.DB),
		Audit:      store.NewAuditRecorder(a.DB),
		Cache:      cache,
		Logger:     logger,
	}
	if examples != nil {
		deps.Examples = examples
	}

	if mode == search.ModeSynthesize {
		client, err := llm.NewClient(llm.Config{
			Provider:  cfg.LLM.Provider,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			BaseURL:   cfg.LLM.BaseURL,
			Timeout:   cfg.LLM.RequestTimeout,
			MaxTokens: cfg.LLM.MaxTokens,
			Retry: llm.RetryConfig{
				MaxRetries: cfg.LLM.MaxRetries,
				BaseDelay:  llm.DefaultRetryConfig.BaseDelay,
				MaxDelay:   llm.DefaultRetryConfig.MaxDelay,
			},
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}

		breakerConfig := llm.DefaultCircuitBreakerConfig
		breakerConfig.Timeout = cfg.LLM.BreakerTimeout
		breakerConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "Synthesis circuit changed state", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		}
		a.Breaker = llm.NewCircuitBreakerClient(client, "synthesis-"+cfg.LLM.Provider, breakerConfig)

		// A nil *ExampleStore must not become a non-nil interface.
		var source synth.ExampleSource
		if examples != nil {
			source = examples
		}
		deps.Synthesizer = synth.New(a.Breaker, source, synth.Config{
			Timeout:   cfg.Search.SynthesisTimeout,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	}

	a.Service, err = search.NewService(deps, search.Config{
		Mode:              mode,
		MaxRows:           cfg.Search.MaxRows,
		TopK:              cfg.Search.TopK,
		EnrichmentTimeout: cfg.Search.EnrichmentTimeout,
		AuditTimeout:      cfg.Search.AuditTimeout,
		MaxAttempts:       cfg.Search.MaxAttempts,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info(ctx, "Search pipeline ready", map[string]interface{}{
		"mode":               string(mode),
		"vocabulary_version": registry.Current().Version(),
		"schema_version":     desc.Version(),
		"cache":              cache != nil,
		"examples":           examples != nil,
	})

	return a, nil
}

// RegisterHealthChecks adds a check for every dependency the App holds.
func (a *App) RegisterHealthChecks(hc *observability.HealthChecker) {
	if a.DB != nil {
		hc.Register("database", observability.DatabaseHealthCheck(a.DB.PingContext))
	}
	if a.Redis != nil {
		hc.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}))
	}
	if a.Breaker != nil {
		hc.Register("synthesis", observability.SynthesisHealthCheck(a.Breaker.Available))
	}
	hc.Register("vocabulary", observability.VocabularyHealthCheck(func() (string, int) {
		current := a.Vocabulary.Current()
		return current.Version(), len(current.Tags())
	}))
}

// Close releases the datastore and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// ShutdownContext bounds cleanup after the serving context is gone.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
