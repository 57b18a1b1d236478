package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kasilink/kasilink-backend/internal/api"
	"github.com/kasilink/kasilink-backend/internal/config"
	"github.com/kasilink/kasilink-backend/internal/db"
	"github.com/kasilink/kasilink-backend/internal/logger"
	"github.com/kasilink/kasilink-backend/internal/metrics"
	"github.com/kasilink/kasilink-backend/internal/notify"
	"github.com/kasilink/kasilink-backend/internal/queue"
	"github.com/kasilink/kasilink-backend/internal/repository"
	"github.com/kasilink/kasilink-backend/internal/repository/memory"
	"github.com/kasilink/kasilink-backend/internal/repository/postgres"
	"github.com/kasilink/kasilink-backend/internal/services"
	"github.com/kasilink/kasilink-backend/internal/watcher"
	"github.com/kasilink/kasilink-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repos repository.Repositories
	switch cfg.StorageBackend {
	case "memory":
		repos = memory.NewRepositories()
		log.Warn("using in-memory storage, data will not survive restarts")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if os.Getenv("APP_MIGRATE") == "true" {
			if err := db.RunMigrations(ctx, pool); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		repos = postgres.NewRepositories(pool)
	}

	var bus notify.Bus = notify.NewLogBus()
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NatsURL, nats.Name("kasilink-backend"))
		if err != nil {
			log.Error("nats connect", "err", err)
			os.Exit(1)
		}
		defer nc.Close()
		bus = notify.NewNATSBus(nc)
	}

	wp := worker.NewPool(4)
	defer wp.Stop()

	walletSvc := services.NewWalletService(repos.WalletRequests, repos.Ledger, cfg.DefaultCurrency)
	moderationSvc := services.NewModerationService(repos.Reports, repos.AuditLogs, bus, wp, cfg.DefaultSLAMinutes)

	metrics.Init()

	// SLA breach watcher
	slaWatcher := watcher.New(repos.Reports, bus, cfg.SLAWatchInterval)
	go slaWatcher.Run(ctx)

	// periodic expiry sweep for overdue wallet requests
	go func() {
		t := time.NewTicker(cfg.ExpirySweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := walletSvc.SweepExpired(ctx); err != nil {
					log.Error("expiry sweep", "err", err)
				} else if n > 0 {
					log.Info("expiry sweep", "expired", n)
				}
			}
		}
	}()

	if nc != nil {
		proc := queue.NewProcessor(moderationSvc, nc)
		go func() {
			if err := proc.Run(ctx); err != nil {
				log.Error("queue processor", "err", err)
			}
		}()
	}

	r := api.NewRouter(cfg, walletSvc, moderationSvc)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
