package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pratik-mahalle/costlens/internal/api/handlers"
	"github.com/pratik-mahalle/costlens/internal/api/router"
	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/detector"
	"github.com/pratik-mahalle/costlens/internal/notify"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/validator"
	"github.com/pratik-mahalle/costlens/internal/providers"
	"github.com/pratik-mahalle/costlens/internal/repository/postgres"
	"github.com/pratik-mahalle/costlens/internal/services"
	"github.com/pratik-mahalle/costlens/internal/worker"
	"github.com/pratik-mahalle/costlens/migrations"
)

// @title costlens API
// @version 1.0
// @description Multi-cloud cost anomaly detection
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	log.SetDefault()

	if err := run(cfg, log); err != nil {
		log.ErrorWithErr(err, "Server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(db, migrations.Files)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"driver":  db.Driver(),
		"applied": applied,
	}).Info("Database ready")

	fetchers := providers.NewCostFetchers(cfg.Providers)
	log.With("providers", providers.Names(fetchers)).Info("Cost providers configured")

	det := detector.New(detector.ConfigFrom(cfg.Anomaly), log.Component("detector"))

	anomalyRepo := postgres.NewAnomalyRepository(db)
	costRepo := postgres.NewCostRepository(db)

	anomalyService := services.NewAnomalyService(anomalyRepo, costRepo, det, log.Component("anomaly_service"))
	costService := services.NewCostService(costRepo, fetchers, log.Component("cost_service"))

	val := validator.New()
	h := &router.Handlers{
		Health:  handlers.NewHealthHandler(db, log),
		Anomaly: handlers.NewAnomalyHandler(anomalyService, log, val),
		Cost:    handlers.NewCostHandler(costService, log, val),
	}

	if cfg.Scanner.Enabled {
		var opts []worker.ScannerOption
		if cfg.Scanner.SlackWebhookURL != "" {
			opts = append(opts, worker.WithNotifier(notify.NewSlackNotifier(notify.SlackConfig{
				WebhookURL:  cfg.Scanner.SlackWebhookURL,
				Channel:     cfg.Scanner.SlackChannel,
				MinSeverity: cfg.Scanner.NotifyMinSeverity,
			}, log)))
		}
		scanner, err := worker.NewAnomalyScanner(anomalyService, costService, cfg.Scanner, log, opts...)
		if err != nil {
			return err
		}
		if err := scanner.Start(ctx); err != nil {
			return err
		}
		defer scanner.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        srv.Addr,
			"environment": cfg.Server.Environment,
		}).Info("Starting costlens API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
