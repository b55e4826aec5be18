package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/handlers"
	"smartmonitor/internal/middleware"
	"smartmonitor/internal/repository"
	"smartmonitor/internal/routes"
	"smartmonitor/internal/strategies"
	"smartmonitor/pkg/config"
	"smartmonitor/pkg/solana/txlookup"
	"smartmonitor/pkg/utils"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the latest migration and exit")
	flag.Parse()

	if err := run(*rollback); err != nil {
		log.WithError(err).Fatal("Admin API stopped")
	}
}

func run(rollback bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger, logFile, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	defer config.CloseDB(db)

	if rollback {
		return config.RollbackMigration(db, cfg.MigrationsDir)
	}
	if err := config.ExecuteMigrations(db, cfg.MigrationsDir); err != nil {
		return err
	}

	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":" + getPort()
	}

	h := &handlers.Handler{
		Store: repository.NewTokenRepository(db),
		CurrentRules: func() []strategies.MonitorRule {
			rules, err := config.LoadRules(cfg.RulesFile)
			if err != nil {
				logger.WithError(err).Warn("Failed to read rules file")
				return nil
			}
			return rules
		},
		Logger: logger,
	}
	if cfg.RPCURL != "" {
		h.CheckHealth = func(ctx context.Context) []txlookup.EndpointCheck {
			return txlookup.CheckEndpoints(ctx, []string{cfg.RPCURL}, 5*time.Second)
		}
	}

	r, limiter := routes.SetupRouter(h, routes.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      middleware.RateLimiterConfig{RequestsPerSecond: cfg.HTTPRateLimit, Burst: cfg.HTTPRateBurst},
	})
	defer limiter.Close()

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{"addr": addr, "version": utils.Version().String()}).Info("Starting admin API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}
