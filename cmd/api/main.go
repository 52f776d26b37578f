package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/mail"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/render"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/session"
	"github.com/spec-kit/account-service/internal/store"
	"github.com/spec-kit/account-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var userRepo repository.UserRepository
	if pg.Enabled() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
	} else {
		userRepo = repository.NewMemoryUserRepository()
	}
	users, err := store.NewUserStore(userRepo, cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("failed to init user store", zap.Error(err))
	}

	var sessions session.Store
	if redis.Enabled() {
		sessions = session.NewRedisStore(redis.Client, cfg.Session.TTL())
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL())
	}

	var mailer mail.Transport
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPTransport(cfg.SMTP)
	} else {
		logger.Warn("SMTP_HOST not provided; emails are written to the log")
		mailer = mail.NewLogTransport(logger.Named("mail"))
	}

	renderer, err := render.New()
	if err != nil {
		logger.Fatal("failed to init templates", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, metrics))

	sessionJWT := auth.NewTokenManager(cfg.Auth.JWTSecret)
	accounts := service.NewAccountService(service.AccountDependencies{
		Users:    users,
		Sessions: sessions,
		Tokens: auth.NewActivationTokens(cfg.Activation.Secret, cfg.Activation.TTLDays,
			auth.WithFallbackSecrets(cfg.Activation.FallbackSecrets...)),
		SessionJWT: sessionJWT,
		Mailer:     mailer,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		Views:                 renderer,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	cookie := handlers.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, metrics),
		Web:      handlers.NewWebHandler(accounts, cookie, cfg.Site, logger),
		Users:    handlers.NewUsersHandler(accounts, cfg.Site),
		Sessions: auth.NewSessionMiddleware(sessionJWT, sessions, users, cfg.Session.CookieName),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
