package main

import (
	"context"
	"fmt"
	"os"

	"bsn-realtime/config"
	"bsn-realtime/internal/broker"
	"bsn-realtime/internal/handler"
	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/metrics"
	"bsn-realtime/internal/middleware"
	bsnredis "bsn-realtime/internal/redis"
	"bsn-realtime/internal/repository"
	"bsn-realtime/internal/retry"
	"bsn-realtime/internal/server"
	"bsn-realtime/internal/services"
	"bsn-realtime/internal/topic"
	"bsn-realtime/internal/websocket"
	"bsn-realtime/pkg/database"
	"bsn-realtime/pkg/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	envFile := pflag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	migrate := pflag.Bool("migrate", false, "Create the realtime tables before serving")
	pflag.Parse()

	var cfg *config.Config
	if *envFile != "" {
		cfg = config.LoadConfig(*envFile)
	} else {
		cfg = config.LoadConfig()
	}

	l := logger.New(cfg.AppMode, zap.String("instance_id", cfg.InstanceID))
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if err := run(cfg, l, *migrate); err != nil {
		l.Errorf("bsn-realtime: %s", err)
		l.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *logger.Logger, migrate bool) error {
	ctx := context.Background()
	m := metrics.New()

	// Connect to Database
	db, dialect, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if migrate || dialect == repository.DialectSQLite {
		if err := repository.Migrate(ctx, db, dialect); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
	}

	chats := repository.NewChatRepository(db, dialect, repository.ChatRepositoryConfig{
		MaxContentBytes: cfg.MaxContentBytes,
		Retry:           retry.DefaultPolicy(),
	})
	users := repository.NewUserRepository(db, dialect)

	checks := map[string]handler.Check{
		"db": func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
	}

	// Presence, rate limiting and the profile cache share one redis client.
	var (
		presence    websocket.PresenceTracker
		reader      handler.PresenceReader
		msgLimiter  services.MessageLimiter
		httpLimiter middleware.QueryLimiter
		lookup      identity.UserLookup = users
	)
	var kvClose func(ctx context.Context) error
	if cfg.PresenceURL != "" {
		client, err := bsnredis.NewClient(cfg.PresenceURL)
		if err != nil {
			db.Close()
			return fmt.Errorf("presence store: %w", err)
		}
		store := bsnredis.NewPresenceStore(client, cfg.PresenceTTL)
		limiter := bsnredis.NewRateLimiter(client, bsnredis.RateLimitConfig{
			MessageLimit:  cfg.MessageRateLimit,
			MessageWindow: cfg.MessageRateWindow,
		})
		presence, reader = store, store
		msgLimiter, httpLimiter = limiter, limiter
		lookup = bsnredis.NewProfileCache(client, users, 0)
		checks["redis"] = func(ctx context.Context) error { return bsnredis.Ping(ctx, client) }
		kvClose = func(context.Context) error { return client.Close() }
	} else {
		l.Warnf("PRESENCE_URL not set: presence and rate limiting are disabled")
	}

	b, err := broker.New(ctx, cfg.BrokerURL, broker.Options{InstanceID: cfg.InstanceID, Metrics: m})
	if err != nil {
		db.Close()
		return fmt.Errorf("broker: %w", err)
	}
	checks["broker"] = func(ctx context.Context) error { return broker.Ping(ctx, b) }

	chatService := services.NewChatService(chats, b, msgLimiter, m, services.ChatServiceConfig{
		MaxContentBytes: cfg.MaxContentBytes,
	})

	verifier := identity.NewJWTVerifier(cfg.JWTSecret, lookup)
	gateway := websocket.NewGateway(websocket.Config{
		InstanceID:      cfg.InstanceID,
		AuthTimeout:     cfg.AuthTimeout,
		CommandTimeout:  cfg.CommandTimeout,
		PresenceTTL:     cfg.PresenceTTL,
		SendBuffer:      cfg.SendBuffer,
		MaxContentBytes: cfg.MaxContentBytes,
	}, websocket.Deps{
		Verifier:   verifier,
		Authoriser: topic.NewPolicy(chats),
		Chats:      chatService,
		Broker:     b,
		Presence:   presence,
		Metrics:    m,
	})

	srv := server.New(cfg, l)
	srv.SetupRoutes(server.Deps{
		Gateway:  gateway,
		Verifier: verifier,
		Presence: reader,
		Limiter:  httpLimiter,
		Metrics:  m,
		Checks:   checks,
	})
	srv.OnShutdown(func(context.Context) error { return b.Close() })
	if kvClose != nil {
		srv.OnShutdown(kvClose)
	}
	srv.OnShutdown(func(context.Context) error { return db.Close() })

	l.Infof("instance %s: store %s", cfg.InstanceID, dialect)
	return srv.Start()
}
