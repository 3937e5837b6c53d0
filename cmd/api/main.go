// @title                       Records API
// @version                     1.0
// @description                 Authentication and authorization service for the school records system.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/classroll/records-api/internal/api"
	"github.com/classroll/records-api/internal/api/handler"
	"github.com/classroll/records-api/internal/api/middleware"
	"github.com/classroll/records-api/internal/core/ports"
	"github.com/classroll/records-api/internal/core/service"
	"github.com/classroll/records-api/internal/infrastructure/config"
	"github.com/classroll/records-api/internal/infrastructure/db/memory"
	"github.com/classroll/records-api/internal/infrastructure/db/mongo"
	"github.com/classroll/records-api/internal/infrastructure/db/redis"
	"github.com/classroll/records-api/internal/infrastructure/queue"
	"github.com/classroll/records-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// stores groups the persistence backends selected by STORE_DRIVER.
type stores struct {
	users ports.UserRepository
	prov  ports.Provisioner
	audit ports.AuditRepository
	close func(context.Context) error
}

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "records-api",
	})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]handler.CheckFunc)

	st, err := openStores(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	var limiter ports.LoginLimiter
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		limiter = redis.NewLoginThrottle(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)
		checks["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, rdb, 2*time.Second) }
	} else {
		log.Warn().Msg("REDIS_ADDR not set, login throttling disabled")
	}

	if err := service.Bootstrap(ctx, st.prov, st.users, service.BootstrapAdmin{
		Username: cfg.Bootstrap.AdminUsername,
		Email:    cfg.Bootstrap.AdminEmail,
		Password: cfg.Bootstrap.AdminPassword,
	}, logger.With("bootstrap")); err != nil {
		return err
	}

	tokens, err := service.NewTokenService(&service.TokenConfig{Secret: cfg.JWTSecret})
	if err != nil {
		return err
	}

	auditCtx, stopAudit := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, st.audit, logger.With("audit"))
	dispatcher.Start(auditCtx)
	defer func() {
		stopAudit()
		dispatcher.Wait()
	}()

	authz := service.NewAuthorizer(st.users)
	e := api.NewRouter(api.Deps{
		Gate:   middleware.NewGate(tokens, st.users, authz, logger.With("gate")),
		Auth:   service.NewAuthService(st.users, tokens, authz, limiter, dispatcher, logger.With("auth")),
		Users:  service.NewUserService(st.users, authz, dispatcher, logger.With("users")),
		Checks: checks,
		Log:    logger.With("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, checks map[string]handler.CheckFunc) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := memory.New()
		return &stores{users: mem, prov: mem, audit: mem, close: func(context.Context) error { return nil }}, nil
	}

	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}
	creds := mongo.NewCredentialStore(db)
	if err := creds.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	checks["mongodb"] = func(ctx context.Context) error { return mongo.Ping(ctx, db) }

	return &stores{
		users: creds,
		prov:  creds,
		audit: mongo.NewAuditRepository(db),
		close: client.Disconnect,
	}, nil
}
