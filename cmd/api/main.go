package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rez-ledger/internal/alerting"
	"rez-ledger/internal/audit"
	"rez-ledger/internal/auth"
	"rez-ledger/internal/breaker"
	"rez-ledger/internal/config"
	"rez-ledger/internal/httpapi"
	"rez-ledger/internal/ledger"
	"rez-ledger/internal/reconcile"
	"rez-ledger/internal/reporting"
	"rez-ledger/internal/retry"
	"rez-ledger/internal/wallet"
	"rez-ledger/internal/webhook"
	"rez-ledger/pkg/cache"
	"rez-ledger/pkg/logger"
	"rez-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local runs keep settings in a .env file; absence is fine.
	_ = godotenv.Load()

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

	authManager, err := auth.NewManager(cfg.Auth)
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

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Alerting bridge: log channel always, Telegram when configured.
	notifiers := []alerting.Notifier{alerting.NewLogNotifier(log)}
	if cfg.Alert.TelegramBotToken != "" {
		guard := breaker.New(breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
		})
		tg, err := alerting.NewTelegramNotifier(cfg.Alert.TelegramBotToken, cfg.Alert.TelegramChatID, guard)
		if err != nil {
			log.Error("telegram notifier init failed", "err", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, tg)
	}
	alerts := alerting.NewBridge(
		alerting.DefaultRules(cfg.Alert.HighValueThreshold),
		alerting.NewRedisCoalescer(rdb),
		log,
		notifiers...,
	)

	balanceCache := cache.New[string, wallet.Snapshot](cache.Config{
		TTL:        cfg.Cache.BalanceTTL,
		MaxEntries: cfg.Cache.BalanceMaxEntries,
	})
	defer balanceCache.Close()

	wallets := wallet.NewService(wallet.NewPostgresStore(db), balanceCache, log)
	velocity := ledger.NewRedisVelocityGuard(rdb, cfg.Velocity.DebitLimit, cfg.Velocity.Window)
	entries := ledger.NewPostgresStore(db)
	posts := ledger.NewService(entries, wallets, velocity, alerts, log)

	webhooks := webhook.NewService(webhook.Config{
		Secrets:      cfg.Webhook.Secrets,
		ReplayWindow: cfg.Webhook.ReplayWindow,
		MaxAttempts:  cfg.Webhook.MaxRetries,
		Backoff: retry.Policy{
			MaxAttempts: cfg.Webhook.MaxRetries,
			BaseDelay:   cfg.Webhook.RetryBase,
			MaxDelay:    cfg.Webhook.RetryMax,
		},
	}, webhook.NewPostgresStore(db), posts, alerts, log)

	drifts := reconcile.NewPostgresDriftStore(db)
	sweeper := reconcile.NewSweeper(entries, wallets, drifts, alerts, log)
	sweeper.Epsilon = cfg.Sweep.Epsilon
	sweeper.BatchSize = cfg.Sweep.BatchSize

	// TODO: back audit with the audit_events table instead of the in-memory repo.
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	reports := reporting.NewService(reporting.NewPostgresRepo(db))

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	if err := webhook.NewWorker(webhooks, alerts, log).Register(sched); err != nil {
		log.Error("webhook worker init failed", "err", err)
		os.Exit(1)
	}
	if err := reconcile.NewScheduler(sweeper, alerts, log, cfg.Sweep.Interval).Register(sched); err != nil {
		log.Error("sweep scheduler init failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Ledger:   posts,
		Wallets:  wallets,
		Webhooks: webhooks,
		Sweeper:  sweeper,
		Drifts:   drifts,
		Alerts:   alerts,
		Reports:  reports,
		Audit:    auditSvc,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
