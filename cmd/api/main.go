// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversations-api/internal/config"
	"github.com/capitalize-ai/conversations-api/internal/handler"
	natsclient "github.com/capitalize-ai/conversations-api/internal/nats"
	"github.com/capitalize-ai/conversations-api/internal/service"
	"github.com/capitalize-ai/conversations-api/internal/store"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
	"github.com/capitalize-ai/conversations-api/pkg/tracing"
)

func main() {
	if err := config.LoadDotEnv(".env", "../.env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	newLogger := logger.New
	if cfg.Environment == "local" {
		newLogger = logger.NewDevelopment
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server",
		zap.String("app", cfg.AppName),
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.StoreDriver),
	)

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, cfg.AppName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				if err := tracing.Shutdown(context.Background(), tp); err != nil {
					log.Warn("failed to flush traces", zap.Error(err))
				}
			}()
		}
	}

	// Storage
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Lifecycle events
	opts := []service.Option{}
	var events handler.EventBus
	if cfg.EventsEnabled() {
		natsClient, err := natsclient.Connect(natsclient.Config{
			Name:     cfg.AppName,
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}

		opts = append(opts, service.WithEventPublisher(streamManager))
		events = streamManager
	} else {
		log.Info("NATS_URL not set, lifecycle events disabled")
	}

	// Initialize services and handlers
	conversationSvc := service.NewConversationService(st, log, opts...)
	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:         cfg.APIPrefix,
		CORSOrigins:       cfg.CORSOrigins,
		JWTSecret:         cfg.JWTSecret,
		DefaultOwnerID:    cfg.DefaultOwnerID,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	},
		handler.NewConversationHandler(conversationSvc, log),
		handler.NewHealthHandler(st, events, log),
		log,
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// openStore builds the configured store, wrapped with metrics.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewInstrumented(store.NewMemoryStore(nil)), func() {}, nil

	case config.DriverBolt:
		bs, err := store.OpenBolt(cfg.BoltPath, nil)
		if err != nil {
			return nil, nil, err
		}
		log.Info("opened bolt store", zap.String("path", cfg.BoltPath))
		return store.NewInstrumented(bs), func() {
			if err := bs.Close(); err != nil {
				log.Warn("failed to close bolt store", zap.Error(err))
			}
		}, nil
	}

	if cfg.DBMigrate {
		if err := store.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, store.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBConnLifetime,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return store.NewInstrumented(store.NewPostgresStore(pool, nil)), pool.Close, nil
}
