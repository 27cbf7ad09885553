// @title                       Account Service API
// @version                     1.0
// @description                 User account management: registration, email verification, login with lockout and role-based administration.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
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

	"github.com/rs/zerolog"

	"github.com/99minutos/account-service/internal/api"
	"github.com/99minutos/account-service/internal/api/handler"
	"github.com/99minutos/account-service/internal/core/policy"
	"github.com/99minutos/account-service/internal/core/ports"
	"github.com/99minutos/account-service/internal/core/service"
	mongostore "github.com/99minutos/account-service/internal/infrastructure/db/mongo"
	pgstore "github.com/99minutos/account-service/internal/infrastructure/db/postgres"
	redisstore "github.com/99minutos/account-service/internal/infrastructure/db/redis"
	"github.com/99minutos/account-service/internal/infrastructure/email"
	"github.com/99minutos/account-service/internal/infrastructure/queue"
	"github.com/99minutos/account-service/internal/infrastructure/config"
	"github.com/99minutos/account-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.MustLoad()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "account-service",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	repo, readiness, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Throttle (optional) ---
	var throttle ports.NotificationThrottle
	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, verification resends are not throttled")
	} else {
		defer rdb.Close()
		throttle = redisstore.NewNotificationThrottle(rdb)
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// --- Notifications ---
	sender := email.NewSender(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		UseSSL:   cfg.SMTP.UseSSL,
	}, cfg.SMTP.Mock, logger.Component("email"))
	notifier, err := email.NewNotifier(sender, cfg.ServerBaseURL, cfg.SMTP.FromName, log)
	if err != nil {
		return err
	}
	dispatcher := queue.NewDispatcher(cfg.Notifications.Workers, notifier, log)
	dispatcher.Start(ctx)

	// --- Core ---
	engine := policy.NewEngine(policy.Config{
		MinLength:           cfg.Policy.MinLength,
		RequireUpper:        cfg.Policy.RequireUpper,
		RequireLower:        cfg.Policy.RequireLower,
		RequireDigit:        cfg.Policy.RequireDigit,
		RequireSymbol:       cfg.Policy.RequireSymbol,
		Symbols:             cfg.Policy.Symbols,
		BcryptCost:          cfg.Policy.BcryptCost,
		TokenBytes:          cfg.Policy.TokenBytes,
		NicknamePrefix:      cfg.Policy.NicknamePrefix,
		NicknameSuffixBytes: cfg.Policy.NicknameSuffixBytes,
		NicknameMaxAttempts: cfg.Policy.NicknameMaxAttempts,
	})
	accounts := service.NewAccountService(repo, engine, notifier, dispatcher, throttle, service.Config{
		MaxLoginAttempts: cfg.Accounts.MaxLoginAttempts,
		DefaultListLimit: cfg.Accounts.DefaultListLimit,
		MaxListLimit:     cfg.Accounts.MaxListLimit,
		NotifyTimeout:    cfg.Accounts.NotifyTimeout,
		ResendCooldown:   cfg.Accounts.ResendCooldown,
	}, log)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Accounts:  accounts,
		Tokens:    service.NewJWTIssuer(cfg.JWTSecret, cfg.TokenTTL),
		JWTSecret: cfg.JWTSecret,
		Readiness: readiness,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info().Msg("server stopped cleanly")
	return nil
}

// openStore connects the configured account store and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.AccountRepository, map[string]handler.Pinger, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := pgstore.Connect(ctx, pgstore.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		readiness := map[string]handler.Pinger{"postgres": db.PingContext}
		return pgstore.NewAccountRepository(db), readiness, func() { _ = db.Close() }, nil

	default:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		repo := mongostore.NewAccountRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		}
		readiness := map[string]handler.Pinger{"mongodb": repo.Ping}
		return repo, readiness, closeFn, nil
	}
}
