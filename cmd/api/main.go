// Package main is the entrypoint for the chatmeter API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/chatmeter/chatmeter/internal/cache"
	"github.com/chatmeter/chatmeter/internal/config"
	"github.com/chatmeter/chatmeter/internal/events"
	"github.com/chatmeter/chatmeter/internal/gateway"
	"github.com/chatmeter/chatmeter/internal/handler"
	"github.com/chatmeter/chatmeter/internal/lock"
	"github.com/chatmeter/chatmeter/internal/logging"
	"github.com/chatmeter/chatmeter/internal/memstore"
	"github.com/chatmeter/chatmeter/internal/metrics"
	"github.com/chatmeter/chatmeter/internal/middleware"
	"github.com/chatmeter/chatmeter/internal/repository"
	"github.com/chatmeter/chatmeter/internal/server"
	"github.com/chatmeter/chatmeter/internal/service"
	"github.com/chatmeter/chatmeter/internal/store"
	"github.com/chatmeter/chatmeter/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	recorder := metrics.NewPrometheus()

	srv, err := build(ctx, cfg, logger, recorder)
	if err != nil {
		os.Exit(1)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", cfg.StoreDriver,
		"lock_backend", cfg.LockBackend,
		"chat_cost", cfg.ChatCost,
		"version", version,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// build connects dependencies and assembles the server. Failures are
// logged here with secrets scrubbed.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder *metrics.PrometheusRecorder) (*server.Server, error) {
	var closers []func(context.Context) error
	fail := func(err error) (*server.Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i](ctx)
		}
		return nil, err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func(context.Context) error { st.Close(); return nil })

	var (
		redisCache *cache.Cache
		authCache  service.AuthCache
		sink       events.Sink = events.Noop{}
		redisPing  handler.HealthChecker
	)
	if cfg.RedisURL != "" {
		redisCache, err = cache.New(ctx, cfg.RedisURL, cache.Config{AuthTTL: cfg.AuthCacheTTL})
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
			)
			return fail(err)
		}
		closers = append(closers, func(context.Context) error { return redisCache.Close() })
		logger.Info("connected to Redis")

		authCache = redisCache
		sink = events.NewPublisher(redisCache.Client(), logger, recorder)
		redisPing = redisCache
	}

	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		lockCfg := lock.DefaultRedisConfig()
		lockCfg.TTL = cfg.LockTTL
		locker = lock.NewRedisLocker(redisCache.Client(), lockCfg, logger)
	default:
		locker = lock.NewKeyedMutex()
	}

	generator := gateway.New(gateway.Config{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GatewayTimeout,
	}, gateway.WithLogger(logger))

	credentials := service.NewCredentialService(st, st, authCache, logger, recorder)
	accounts := service.NewAccountService(st, credentials, service.AccountConfig{
		StartingBalance: cfg.StartingBalance,
	}, logger, recorder)
	metering := service.NewMeteringService(st, st, generator, locker, sink, service.MeteringConfig{
		Cost: cfg.ChatCost,
	}, logger, recorder)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:   logger,
		Metrics:  recorder,
		Resolver: credentials,
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORSOrigins: cfg.GetCORSAllowedOrigins(),
		Root:        handler.New("chatmeter", version),
		Health:      handler.NewHealthHandler(st, redisPing),
		Exporter:    handler.NewMetricsHandler(recorder.Handler()),
		Accounts:    handler.NewAccountHandler(accounts, logger),
		Chat:        handler.NewChatHandler(metering, logger),
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("store", func(context.Context) error { st.Close(); return nil })
	if redisCache != nil {
		srv.OnShutdown("redis", func(context.Context) error { return redisCache.Close() })
	}

	return srv, nil
}

// openStore connects the configured store and applies migrations when asked.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), nil
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		return nil, err
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		applied, err := repo.Migrate(ctx, migrations.FS)
		if err != nil {
			logger.Error("migration failed", "error", err)
			repo.Close()
			return nil, err
		}
		logger.Info("migrations applied", "versions", applied)
	}

	return repo, nil
}
