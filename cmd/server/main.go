package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/app"
	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/handlers"
	"github.com/stwalsh4118/urbex/api/internal/logger"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting Urbex API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", err, map[string]interface{}{
			"driver": cfg.Database.Driver,
		})
	}
	defer a.Close()

	// Scheduled pipeline runs share ctx so shutdown cancels a run in progress
	scheduler, err := a.Scheduler(ctx)
	if err != nil {
		log.Fatal("Failed to configure scheduler", err, nil)
	}
	if scheduler != nil {
		scheduler.Start()
		log.Info("Pipeline scheduler started", map[string]interface{}{
			"schedule": cfg.Pipeline.Schedule,
			"sources":  len(cfg.Sources),
		})
	}

	srv := a.Server()

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("Pipeline run still in progress at shutdown", nil)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
