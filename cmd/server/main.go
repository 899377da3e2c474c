package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	accounthandler "troupon/internal/account/handler"
	accountmodels "troupon/internal/account/models"
	accountservice "troupon/internal/account/service"
	"troupon/internal/account/store/user"
	"troupon/internal/platform/config"
	"troupon/internal/platform/httpserver"
	"troupon/internal/platform/logger"
	"troupon/internal/platform/mailer"
	"troupon/internal/platform/metrics"
	"troupon/internal/platform/postgres"
	platformredis "troupon/internal/platform/redis"
	"troupon/internal/recovery/elevation"
	recoveryhandler "troupon/internal/recovery/handler"
	recoverymetrics "troupon/internal/recovery/metrics"
	recoveryservice "troupon/internal/recovery/service"
	"troupon/internal/recovery/token"
	httptransport "troupon/internal/transport/http"
	id "troupon/pkg/domain"
	dErrors "troupon/pkg/domain-errors"
	"troupon/pkg/platform/audit/publisher"
	auditmemory "troupon/pkg/platform/audit/store/memory"
)

// accountStore is what both the account and recovery services need from storage.
type accountStore interface {
	Save(ctx context.Context, user *accountmodels.User) error
	FindByID(ctx context.Context, userID id.UserID) (*accountmodels.User, error)
	FindByEmail(ctx context.Context, email string) (*accountmodels.User, error)
	SetPassword(ctx context.Context, userID id.UserID, passwordHash string, changedAt time.Time) error
}

func main() {
	if err := run(); err != nil {
		slog.Error("troupon exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)
	recoveryMetrics := recoverymetrics.New(reg)

	checks := map[string]httptransport.HealthCheck{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	var accounts accountStore
	if db != nil {
		defer closeDB(db, log)
		pg := user.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		accounts = pg
		checks["postgres"] = db.PingContext
		log.Info("account store ready", "backend", "postgres")
	} else {
		accounts = user.New()
		log.Warn("DATABASE_URL not set, accounts are kept in memory")
	}

	auditStore := auditmemory.NewInMemoryStore(auditmemory.WithMaxEvents(cfg.Audit.MaxEvents))
	auditOpts := []publisher.Option{publisher.WithLogger(log)}
	if cfg.Audit.BufferSize > 0 {
		auditOpts = append(auditOpts, publisher.WithAsyncBuffer(cfg.Audit.BufferSize))
	}
	auditor := publisher.NewPublisher(auditStore, auditOpts...)
	defer auditor.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var grants recoveryservice.ElevationStore
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		grants = elevation.NewRedis(redisClient.Client, elevation.WithMetrics(recoveryMetrics))
		checks["redis"] = redisClient.Health
		log.Info("elevation store ready", "backend", "redis")
	} else {
		grants = elevation.NewInMemory()
		log.Warn("REDIS_URL not set, elevation grants are kept in memory")
	}

	transport, err := mailer.New(cfg.Mail, log)
	if err != nil {
		return err
	}

	accountSvc := accountservice.New(accounts,
		accountservice.WithLogger(log),
		accountservice.WithAuditor(auditor),
	)
	if err := seedUsers(ctx, accountSvc, cfg.SeedUsers, log); err != nil {
		return err
	}

	codec, err := token.New(cfg.Recovery.Secret, accounts, token.WithTTL(cfg.Recovery.TokenTTL))
	if err != nil {
		return err
	}
	recoverySvc := recoveryservice.New(codec, accounts, grants, transport,
		recoveryservice.WithLogger(log),
		recoveryservice.WithMetrics(recoveryMetrics),
		recoveryservice.WithGrantTTL(cfg.Recovery.GrantTTL),
		recoveryservice.WithTokenTTL(cfg.Recovery.TokenTTL),
		recoveryservice.WithSender(cfg.Mail.Sender),
		recoveryservice.WithAuditor(auditor),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      httpMetrics,
		Session:      cfg.Session,
		HealthChecks: checks,
		Handlers: []httptransport.Routes{
			accounthandler.New(accountSvc, log),
			recoveryhandler.New(recoverySvc, log,
				recoveryhandler.WithBaseURL(cfg.Server.BaseURL),
				recoveryhandler.WithAllowedHosts(cfg.Server.AllowedHosts...),
				recoveryhandler.WithTrustedProxy(cfg.Server.TrustProxy),
				recoveryhandler.WithSecureCookies(cfg.Session.CookieSecure),
			),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting troupon", "addr", cfg.Server.Addr, "env", cfg.Environment, "mail_transport", cfg.Mail.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedUsers registers development accounts. Existing emails are left alone.
func seedUsers(ctx context.Context, svc *accountservice.Service, seeds []config.SeedUser, log *slog.Logger) error {
	for _, seed := range seeds {
		_, err := svc.Register(ctx, &accountmodels.RegisterRequest{Email: seed.Email, Password: seed.Password, Active: true})
		switch {
		case err == nil:
			log.Info("seeded account", "email", seed.Email)
		case dErrors.HasCode(err, dErrors.CodeConflict):
		default:
			return err
		}
	}
	return nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Error("closing database", "error", err)
	}
}
