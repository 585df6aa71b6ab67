package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/config"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/platform/server"
	"github.com/gatehouse-io/gatehouse/internal/platform/telemetry"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/subscription"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("gatehouse starting", "port", cfg.Server.Port)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("connecting to database")
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
	if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	tx := database.NewTransactor(pool)

	// Audit
	auditStore := audit.NewStore()
	auditLogger := audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushIntervalMS) * time.Millisecond,
	}, logger)
	defer auditLogger.Close()

	// Auth
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password hasher: %w", err)
	}
	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.JWT.SigningKey,
		Issuer:     cfg.Auth.JWT.Issuer,
		Audience:   cfg.Auth.JWT.Audience,
		Expiry:     cfg.Auth.JWT.Expiry(),
	})
	roles := rbac.NewProvider(cfg.Auth.SuperAdminIDs)

	// Tenants and users
	tenantStore := tenant.NewStore()
	userStore := tenant.NewUserStore()
	tenantSvc := tenant.NewService(tx, tenantStore, auditLogger, logger)
	userSvc := tenant.NewUserService(tx, userStore, hasher, auditLogger, logger)

	authSvc := auth.NewService(auth.ServiceConfig{
		Tx:          tx,
		Accounts:    tenant.NewAccountStore(tenantStore, userStore),
		Hasher:      hasher,
		Tokens:      tokens,
		Roles:       roles,
		Audit:       auditLogger,
		Logger:      logger,
		TrialPeriod: time.Duration(cfg.Subscription.TrialDays) * 24 * time.Hour,
	})

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.RateLimit, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var gateOpts []subscription.Option
	if len(cfg.Subscription.PublicPaths) > 0 {
		gateOpts = append(gateOpts, subscription.WithPublicPaths(cfg.Subscription.PublicPaths...))
	}

	separateMetrics := cfg.Metrics.Enabled && cfg.Metrics.Addr != ""

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		DB:                 pool,
		Tokens:             tokens,
		AuthHandler:        auth.NewHandler(authSvc, logger),
		TenantHandler:      tenant.NewHandler(tenantSvc, logger),
		UserHandler:        tenant.NewUserHandler(userSvc, logger),
		AuditHandler:       audit.NewHandler(tx, auditStore, auth.RequestScope, logger),
		Gate:               subscription.NewGate(tenantSvc, logger, gateOpts...),
		Limiter:            limiter,
		Policies:           ratelimit.NewPolicies(cfg.RateLimit),
		ServeMetrics:       cfg.Metrics.Enabled && !separateMetrics,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	if separateMetrics {
		metricsSrv := server.NewMetrics(cfg.Metrics.Addr, logger)
		g.Go(func() error { return metricsSrv.Start(ctx) })
	}

	slog.Info("server ready", "addr", addr, "ratelimit", cfg.RateLimit.Enabled, "ratelimit_backend", cfg.RateLimit.Backend)
	return g.Wait()
}

// buildLimiter returns a nil limiter when rate limiting is disabled.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	switch cfg.Backend {
	case "memory":
		return ratelimit.NewMemoryLimiter(), noop, nil
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := ratelimit.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting rate limit backend: %w", err)
		}
		logger.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
		return ratelimit.NewRedisLimiter(client, nil), func() { _ = client.Close() }, nil
	default:
		return nil, noop, errors.New("unknown rate limit backend " + cfg.Backend)
	}
}
