package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/seanankenbruck/viewpoint-search/internal/api"
	"github.com/seanankenbruck/viewpoint-search/internal/app"
	"github.com/seanankenbruck/viewpoint-search/internal/auth"
	"github.com/seanankenbruck/viewpoint-search/internal/config"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger("search-server").WithLevel(observability.ParseLevel(cfg.Log.Level))
	gin.SetMode(cfg.Server.GinMode)

	var a *app.App
	err = logger.WithOperation(ctx, "build_search_pipeline", func(ctx context.Context) error {
		a, err = app.Build(ctx, cfg, logger, app.Options{})
		return err
	})
	if err != nil {
		os.Exit(1)
	}
	defer a.Close()

	var authenticator *auth.Authenticator
	limiter := auth.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst)
	if cfg.Auth.Enabled {
		authenticator, err = auth.NewAuthenticator(auth.Config{
			Enabled:        cfg.Auth.Enabled,
			JWTSecret:      cfg.Auth.JWTSecret,
			JWTIssuer:      cfg.Auth.JWTIssuer,
			JWTExpiry:      cfg.Auth.JWTExpiry,
			APIKeys:        cfg.Auth.APIKeys,
			RateLimit:      cfg.Auth.RateLimit,
			RateBurst:      cfg.Auth.RateBurst,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
		})
		if err != nil {
			logger.Error(ctx, "Failed to initialize authentication", err, nil)
			os.Exit(1)
		}
	}

	health := observability.NewHealthChecker("viewpoint-search", version)
	a.RegisterHealthChecks(health)

	server, err := api.NewServer(api.Options{
		Search:  a.Service,
		Auth:    authenticator,
		Limiter: limiter,
		Health:  health,
		Logger:  logger,
		MaxTopK: cfg.Search.MaxRows,
	})
	if err != nil {
		logger.Error(ctx, "Failed to create API server", err, nil)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "Search server starting", map[string]interface{}{
			"port":    cfg.Server.Port,
			"version": version,
			"mode":    string(a.Service.Mode()),
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := app.ShutdownContext(cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "Shutting down search server", nil)
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Vocabulary.Watch && cfg.Vocabulary.Path != "" {
		watcher, err := vocabulary.NewWatcher(cfg.Vocabulary.Path, a.Vocabulary, logger)
		if err != nil {
			// Serving continues on the loaded snapshot.
			logger.Warn(ctx, "Vocabulary hot reload disabled", map[string]interface{}{
				"path":  cfg.Vocabulary.Path,
				"error": err.Error(),
			})
		} else {
			g.Go(func() error {
				return watcher.Run(gctx)
			})
		}
	}

	if limiter.Limit() > 0 {
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "Search server stopped with error", err, nil)
		a.Close()
		os.Exit(1)
	}
	logger.Info(context.Background(), "Search server stopped", nil)
}
