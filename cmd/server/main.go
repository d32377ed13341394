package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/api"
	"github.com/eldtechnologies/sendmessage/internal/api/middleware"
	"github.com/eldtechnologies/sendmessage/internal/config"
	"github.com/eldtechnologies/sendmessage/internal/handlers"
	"github.com/eldtechnologies/sendmessage/internal/relay"
	"github.com/eldtechnologies/sendmessage/internal/settings"
	"github.com/eldtechnologies/sendmessage/internal/store"
	"github.com/eldtechnologies/sendmessage/internal/transport"
)

// backends holds the connections opened for the configured components.
type backends struct {
	memory   *store.MemoryStore
	sqlite   *store.SQLiteStore
	postgres *store.PostgresStore
	redis    *store.RedisStore
}

func (b *backends) close() {
	if b.sqlite != nil {
		b.sqlite.Close()
	}
	if b.postgres != nil {
		b.postgres.Close()
	}
	if b.redis != nil {
		b.redis.Close()
	}
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	b := openBackends(ctx, cfg, logger)
	defer b.close()

	// Property store and change feed
	var props store.PropertyStore
	switch cfg.PropertyStore {
	case config.BackendMemory:
		props = b.memory
	case config.BackendSQLite:
		props = b.sqlite
	case config.BackendPostgres:
		props = b.postgres
	case config.BackendRedis:
		props = b.redis
	}

	// Subscribe before the first read so no change slips between them. Every
	// resubscription re-reads the properties to catch up on missed changes.
	st := settings.New(props, logger)
	if w, ok := props.(store.Watcher); ok {
		ready := make(chan struct{})
		var once sync.Once
		go store.Supervise(ctx, w, logger, func() {
			st.Reload(ctx)
			once.Do(func() { close(ready) })
		})

		select {
		case <-ready:
			logger.Info().Str("store", cfg.PropertyStore).Msg("subscribed to property changes")
		case <-time.After(10 * time.Second):
			logger.Warn().Msg("property change feed not yet subscribed, continuing")
		}
	}
	st.Initialize(ctx)

	// User directory
	var dir store.Directory
	switch cfg.Directory {
	case config.BackendMemory:
		dir = b.memory
	case config.BackendSQLite:
		dir = b.sqlite
	case config.BackendPostgres:
		dir = b.postgres
	}

	// Messaging network
	var tr transport.Component
	switch cfg.Transport {
	case config.BackendNATS:
		nc, err := transport.ConnectNATS(cfg.NatsURL, cfg.ServiceAddress())
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connection failed")
		}
		defer nc.Close()
		nt, err := transport.NewNATSTransport(nc, cfg.NatsSubject, cfg.ServiceAddress())
		if err != nil {
			logger.Fatal().Err(err).Msg("jetstream unavailable")
		}
		tr = nt
		logger.Info().Str("url", cfg.NatsURL).Msg("connected to NATS")
	case config.BackendRedis:
		tr = transport.NewRedisTransport(b.redis.Client(), cfg.ServiceAddress())
	}

	// A failed registration leaves the endpoint up; dispatch reports it per request
	if err := tr.Register(ctx); err != nil {
		logger.Error().Err(err).Str("address", tr.Address()).Msg("component registration failed")
	} else {
		logger.Info().Str("address", tr.Address()).Str("transport", tr.Name()).Msg("component registered")
	}

	svc := relay.NewService(st, dir, tr, cfg.Domain, logger)
	h := handlers.NewHandler(svc, st, logger, map[string]handlers.Pinger{
		"properties": props,
		"directory":  dir,
		"transport":  tr,
	})

	opts := api.Options{
		AdminToken:        cfg.AdminToken,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	}
	if b.redis != nil {
		opts.RateLimitClient = b.redis.Client()
	}
	if cfg.AdminToken == "" {
		logger.Info().Msg("ADMIN_TOKEN not set, admin API disabled")
	}

	router := api.NewRouter(logger, h, opts)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("domain", cfg.Domain).
			Msg("starting sendmessage relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	st.Close()
	if err := tr.Deregister(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("component deregistration failed")
	}
	stop()

	logger.Info().Msg("server stopped")
}

// openBackends connects to every backend a component is configured to use.
// Any failure is fatal.
func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *backends {
	b := &backends{}

	if cfg.UsesBackend(config.BackendMemory) {
		logger.Warn().Msg("using in-memory storage, state is lost on restart")
		b.memory = store.NewMemoryStore()
	}

	if cfg.UsesBackend(config.BackendSQLite) {
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		b.sqlite = s
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite database")
	}

	if cfg.UsesBackend(config.BackendPostgres) {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		b.postgres = s
		logger.Info().Msg("connected to PostgreSQL")
	}

	// Redis also backs rate limiting whenever a URL is given
	if cfg.UsesBackend(config.BackendRedis) || cfg.RedisURL != "" {
		s, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		b.redis = s
		logger.Info().Msg("connected to Redis")
	}

	return b
}
