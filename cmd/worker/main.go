package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/handlers"
	"smartmonitor/internal/middleware"
	"smartmonitor/internal/observability"
	"smartmonitor/internal/repository"
	"smartmonitor/internal/routes"
	"smartmonitor/internal/schedule"
	"smartmonitor/internal/strategies"
	"smartmonitor/pkg/config"
	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/txlookup"
	"smartmonitor/pkg/utils"
)

const (
	// jupiterCacheAge bounds how stale a fallback quote may be.
	jupiterCacheAge = 2 * time.Minute

	// Lookups run on the rule goroutine, keep the not-found retries short.
	lookupRetries    = 2
	lookupRetryDelay = 250 * time.Millisecond
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Smart monitor worker stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireStream(); err != nil {
		return err
	}

	logger, logFile, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.WithField("version", utils.Version().String()).Info("Starting smart monitor worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repository.Store = repository.NewMemoryStore()
	if cfg.Database.Enabled() {
		db, err := config.InitDB(cfg.Database)
		if err != nil {
			return err
		}
		defer config.CloseDB(db)
		if err := config.ExecuteMigrations(db, cfg.MigrationsDir); err != nil {
			return err
		}
		store = repository.NewTokenRepository(db)
	} else {
		logger.Warn("Database not configured, tracked mints are kept in memory")
	}

	sinks := strategies.MultiSink{strategies.LogSink{Logger: logger}}
	if cfg.RabbitMQ.Enabled() {
		conn, err := config.DialRabbitMQ(ctx, cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher, err := config.NewPublisher(conn)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, strategies.QueueSink{Publisher: publisher, Queue: cfg.AlertQueue})
		logger.WithField("queue", cfg.AlertQueue).Info("Publishing alerts to RabbitMQ")
	}

	metrics := observability.NewMetrics("smart_monitor")

	stream := logstream.NewClient(cfg.WSSURL, logstream.DefaultConfig())
	stream.SetObserver(metrics)

	oracle, err := strategies.NewPriceOracle(cfg.PriceSource, rpc.New(cfg.RPCURL), utils.NewJupiterClient(cfg.JupiterURL, jupiterCacheAge))
	if err != nil {
		return err
	}

	reloader := &schedule.RuleReloader{
		RulesFile:        cfg.RulesFile,
		Accounts:         store,
		AccountProfitPct: cfg.AccountProfitPct,
		Observer:         metrics,
	}
	rules, err := reloader.BuildRules(ctx)
	if err != nil {
		return err
	}

	engine, err := strategies.NewEngine(strategies.StreamClient{Client: stream}, rules,
		strategies.WithSink(sinks),
		strategies.WithPriceOracle(oracle),
		strategies.WithLookup(txlookup.New(cfg.RPCURL,
			txlookup.WithMaxRetries(lookupRetries),
			txlookup.WithRetryDelay(lookupRetryDelay, 2*lookupRetryDelay),
		)),
		strategies.WithTrackerDrain(trackerDrain(cfg.ShutdownGrace)),
		strategies.WithTracker(store),
		strategies.WithMetrics(metrics),
		strategies.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	metrics.RulesReloaded(len(rules), nil)

	reloader.Target = engine
	if err := reloader.Start(ctx, cfg.RulesReloadSpec); err != nil {
		return err
	}
	defer reloader.Stop()

	if cfg.HTTPAddr != "" {
		srv, limiter := newServer(cfg, store, engine, reloader, metrics, logger)
		defer limiter.Close()
		go func() {
			logger.WithField("addr", cfg.HTTPAddr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("HTTP server failed")
				stop()
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.WithError(err).Warn("HTTP server shutdown")
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	logger.WithField("grace", cfg.ShutdownGrace.String()).Info("Shutdown signal received")
	select {
	case err := <-done:
		logger.Info("Smart monitor worker stopped")
		return err
	case <-time.After(cfg.ShutdownGrace):
		return errors.New("rule tasks did not stop within the shutdown grace period")
	}
}

// trackerDrain leaves part of the grace period for the rest of shutdown.
func trackerDrain(grace time.Duration) time.Duration {
	if d := grace / 4; d < strategies.DefaultTrackerDrain {
		return d
	}
	return strategies.DefaultTrackerDrain
}

func newServer(cfg *config.AppConfig, store repository.Store, engine *strategies.Engine, reloader *schedule.RuleReloader, metrics *observability.Metrics, logger *log.Logger) (*http.Server, *middleware.RateLimiter) {
	h := &handlers.Handler{
		Store:        store,
		CurrentRules: engine.Rules,
		CheckHealth: func(ctx context.Context) []txlookup.EndpointCheck {
			return txlookup.CheckEndpoints(ctx, []string{cfg.RPCURL}, 5*time.Second)
		},
		OnAccountsChanged: reloader.ReloadOnce,
		Logger:            logger,
	}
	r, limiter := routes.SetupRouter(h, routes.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      middleware.RateLimiterConfig{RequestsPerSecond: cfg.HTTPRateLimit, Burst: cfg.HTTPRateBurst},
		Metrics:        metrics.Handler(),
	})
	return &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}, limiter
}
