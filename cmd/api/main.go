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

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"callflex/internal/actions"
	"callflex/internal/assistants"
	"callflex/internal/audit"
	"callflex/internal/auth"
	"callflex/internal/billing"
	"callflex/internal/calls"
	"callflex/internal/config"
	"callflex/internal/httpapi"
	"callflex/internal/idempotency"
	"callflex/internal/phonenumbers"
	"callflex/internal/queue"
	"callflex/internal/realtime"
	"callflex/internal/reporting"
	"callflex/internal/telephony"
	"callflex/internal/templates"
	"callflex/internal/tenants"
	"callflex/internal/usage"
	"callflex/internal/voice"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.App.Env,
		}); err != nil {
			log.Error("sentry init failed", "err", err)
		}
	}

	// Money leaves the API as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	x := utils.NewSQLX(db, "pgx")

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	ledger := newLedger(cfg.Ledger, db, rdb)
	retryQ, dlq := newRetryQueues(cfg.Queue, rdb)
	defer retryQ.Close()

	tenantsRepo := tenants.NewPostgresRepo(db, x)
	callsRepo := calls.NewPostgresRepo(db, x)
	templatesRepo := templates.NewPostgresRepo(x)
	assistantsRepo := assistants.NewPostgresRepo(db, x)
	broadcaster := realtime.NewRedisBroadcaster(rdb)

	gateway := billing.NewStripeGateway(cfg.Stripe.SecretKey)
	reconciler := billing.NewReconciler(tenantsRepo, gateway, audit.NewService(audit.NewPostgresRepo(db)), ledger)

	retryCfg := queue.DefaultConfig(billing.RetryQueueName)
	retryCfg.MaxRetries = cfg.Queue.MaxRetries
	retryCfg.RetryBackoff = cfg.Queue.RetryBackoff
	retryCfg.BatchTimeout = cfg.Queue.BatchTimeout
	worker := billing.NewRetryWorker(retryQ, dlq, reconciler, retryCfg)
	worker.Start(rootCtx)

	d := deps{
		verifier: verifier,
		users:    tenantsRepo,
		voice: voice.Handler{
			Ingestor: voice.NewIngestor(
				callsRepo,
				usage.NewAccountant(tenantsRepo),
				ledger,
				broadcaster,
				actions.NewExecutor(tenantsRepo, callsRepo),
			),
			Orgs:            tenantsRepo,
			FunctionTimeout: cfg.Webhooks.FunctionTimeout,
		},
		stripe: billing.Handler{Reconciler: reconciler, Retry: retryQ},
		twilio: telephony.StatusHandler{Ingestor: telephony.NewStatusIngestor(callsRepo, ledger)},
		api: httpapi.Handlers{
			Tenants:    tenantsRepo,
			Calls:      callsRepo,
			Reporting:  reporting.NewService(reporting.NewPostgresRepo(x)),
			Templates:  templatesRepo,
			Assistants: assistants.NewService(assistantsRepo, templatesRepo),
			PhoneNumbers: phonenumbers.NewService(
				phonenumbers.NewPostgresRepo(db, x),
				telephony.NewCatalogProvider(),
				tenantsRepo,
				assistantsRepo,
			),
			Gateway:  gateway,
			Realtime: broadcaster,
			AppURL:   cfg.App.URL,
		},
		checks: map[string]httpapi.Check{
			"database": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}

	r := gin.New()
	registerRoutes(r, cfg, d)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: SSE streams stay open until the client leaves.
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "queue", cfg.Queue.Backend, "ledger", cfg.Ledger.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	worker.Stop()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func newLedger(cfg config.LedgerConfig, db *sql.DB, rdb *redis.Client) idempotency.Ledger {
	if cfg.Backend == "redis" {
		return idempotency.NewRedisLedger(rdb, cfg.RedisTTL)
	}
	return idempotency.NewPostgresLedger(db)
}

func newRetryQueues(cfg config.QueueConfig, rdb *redis.Client) (queue.Queue, queue.DeadLetterQueue) {
	if cfg.Backend == "memory" {
		return queue.NewMemoryQueue(1024), queue.NewMemoryDeadLetterQueue()
	}
	return queue.NewRedisQueue(rdb, billing.RetryQueueName), queue.NewRedisDeadLetterQueue(rdb, billing.RetryQueueName)
}
