package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-posting/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-posting/internal/app"
	"github.com/odyssey-erp/odyssey-posting/internal/fx"
	"github.com/odyssey-erp/odyssey-posting/internal/observability"
	"github.com/odyssey-erp/odyssey-posting/internal/partners"
	"github.com/odyssey-erp/odyssey-posting/internal/payments"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/db"
	"github.com/odyssey-erp/odyssey-posting/internal/posting"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
	"github.com/odyssey-erp/odyssey-posting/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		code := runCommand(ctx, cfg, logger, os.Args[1], os.Args[2:])
		stop()
		os.Exit(code)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		logger.Error("init tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName(cfg.OTelServiceName))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	engine := sod.NewEngine(nil)

	accountRepo := accounts.NewRepository(dbpool)
	postingService := posting.NewService(engine, coa.NewValidator(accountRepo))
	if cfg.PeriodGuard {
		postingService.WithPeriodGuard(periods.NewGuard(periods.NewRepository(dbpool)))
	}
	postingHandler := posting.NewHandler(logger, postingService, auditLogger, metrics)

	fxService := app.NewFXService(cfg, logger, redisClient, dbpool, metrics)

	compiler := payments.NewCompiler(payments.Deps{
		Banks:    accountRepo,
		Advances: accountRepo,
		Parties:  partners.NewRepository(dbpool),
		Mappings: mappings.NewRepository(dbpool),
		Poster:   postingService,
		Engine:   engine,
	})
	paymentsHandler := payments.NewHandler(compiler, payments.HandlerConfig{
		Logger:       logger,
		Rates:        fxService,
		Audit:        auditLogger,
		Metrics:      metrics,
		BaseCurrency: cfg.BaseCurrency,
	})

	accessHandler := sod.NewHandler(logger, engine, auditLogger, metrics)

	redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("parse redis address", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	fxHandler := fx.NewHandler(logger, fxService, jobClient, cfg.FXTargetCurrencies, cfg.FXStaleThreshold)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Metrics:  metrics,
		Posting:  postingHandler,
		Payments: paymentsHandler,
		Access:   accessHandler,
		FX:       fxHandler,
		Jobs:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand executes an operational subcommand and returns its exit code.
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "fx":
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			return cli.ExitError
		}
		defer redisClient.Close()

		// History is optional for one-off runs.
		dbpool, err := db.New(ctx, cfg.PGDSN, db.WithApplicationName(cfg.OTelServiceName+"-cli"))
		if err != nil {
			logger.Warn("postgres unavailable, rate history disabled", slog.Any("error", err))
		} else {
			defer dbpool.Close()
		}

		ops, err := cli.NewFXOpsCLI(app.NewFXService(cfg, logger, redisClient, dbpool, nil))
		if err != nil {
			logger.Error("init fx cli", slog.Any("error", err))
			return cli.ExitError
		}
		return ops.Run(ctx, args, os.Stdout, os.Stderr)
	case "jobs":
		ops, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			return cli.ExitError
		}
		defer ops.Close()
		return ops.Run(ctx, args, os.Stdout, os.Stderr)
	default:
		logger.Error("unknown command", slog.String("command", name))
		return cli.ExitError
	}
}
