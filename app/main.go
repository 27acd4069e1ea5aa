package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adwatch/adwatch/app/api"
	"github.com/adwatch/adwatch/app/cfg"
	"github.com/adwatch/adwatch/app/collector"
	"github.com/adwatch/adwatch/app/config"
	"github.com/adwatch/adwatch/app/database"
	"github.com/adwatch/adwatch/app/tasks"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Optional .env file for local development
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	log.Println("Starting adwatch...")

	// Database connection
	log.Printf("Opening database %s...", appCfg.DBFile)
	db, err := database.NewConnection(appCfg.DBFile)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty: %t)", version, dirty)

	// Monitor configuration
	log.Printf("Loading monitor configuration from %s...", appCfg.ConfigFile)
	initial, err := config.Load(appCfg.ConfigFile)
	if err != nil {
		log.Fatal("Failed to load monitor configuration:", err)
	}
	configStore := config.NewStore(appCfg.ConfigFile, initial)
	log.Printf("Monitoring %d searches, refresh every %d minutes",
		len(initial.Searches), initial.RefreshIntervalMinutes)

	// Core components
	adRepo := database.NewAdRepo(db)
	fetcher := collector.NewBrowser(appCfg.BrowserURL, appCfg.UserAgent)

	// Background scheduler
	log.Println("Starting background scheduler...")
	scheduler := tasks.NewScheduler(configStore, fetcher, adRepo)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP server
	handler := api.NewHandler(configStore, adRepo, scheduler)
	server := api.NewServer(handler, appCfg.APIAccessKey, appCfg.RateLimitRPM)

	httpServer := &http.Server{
		Addr:         initial.ServerBinding,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", initial.ServerBinding)
		log.Printf("  Feed:   http://%s/rss", initial.ServerBinding)
		log.Printf("  Health: http://%s/health", initial.ServerBinding)
		log.Printf("  Editor: http://%s/edit", initial.ServerBinding)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
