package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/ngoreports/internal/app"
	"github.com/rpattn/ngoreports/internal/config"
	"github.com/rpattn/ngoreports/internal/ingestion"
	"github.com/rpattn/ngoreports/internal/janitor"
	"github.com/rpattn/ngoreports/internal/logger"
	"github.com/rpattn/ngoreports/internal/server"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logg := logger.New(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage and migrations
	stores, err := app.OpenStores(ctx, cfg, logg)
	if err != nil {
		logg.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	services := app.NewServices(cfg, stores, logg)

	// Remove uploads orphaned by a crash mid-job
	sweeper := janitor.NewSweeper(cfg.Uploads.Dir, ingestion.UploadFilePrefix, cfg.Uploads.OrphanTTL, logg,
		janitor.WithTracker(services.Dispatcher),
	)
	sweeps := janitor.NewService(cfg.Uploads.SweepSchedule, sweeper)
	if err := sweeps.Start(); err != nil {
		logg.Error("failed to start upload janitor", "error", err)
		os.Exit(1)
	}

	handler := server.NewRouter(server.Dependencies{
		Ingestion:      services.Ingestion,
		Reports:        services.Reports,
		Jobs:           stores.Jobs,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logg,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("starting server", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "jobs", cfg.Jobs.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server forced to shutdown", "error", err)
	}
	<-sweeps.Stop().Done()

	// Let running jobs reach a terminal state before the stores close.
	if err := services.Dispatcher.Wait(shutdownCtx); err != nil {
		logg.Warn("ingestion jobs still running at shutdown", "error", err)
	}

	logg.Info("server exited")
}
