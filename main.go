package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"streamrelay/api"
	"streamrelay/config"
	"streamrelay/handlers"
	"streamrelay/internal/browser"
	"streamrelay/services/batch"
	"streamrelay/services/bypass"
	"streamrelay/services/catalog"
	"streamrelay/services/sessions"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	fmt.Println("🚀 streamrelay starting...")

	configPath := os.Getenv("STREAMRELAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}
	slog.SetLogLoggerLevel(parseLevel(settings.Log.Level))

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if settings.Catalog.BaseURL == "" {
		log.Printf("Warning: catalog.baseUrl is not set in %s; it must point at a service answering ?method=series|episode|search|airing", cfgManager.Path())
	}
	if settings.Bypass.BaseURL == "" {
		log.Printf("Warning: bypass.baseUrl is not set in %s; every resolution will fail", cfgManager.Path())
	}

	// Catalog and bypass calls are bounded; relay transfers only by their context.
	catalogHTTP := browser.NewClient(browser.Options{Timeout: settings.CatalogTimeout(), Fingerprint: settings.Upstream.TLSFingerprint})
	bypassHTTP := browser.NewClient(browser.Options{Timeout: settings.BypassTimeout()})
	relayHTTP := browser.NewClient(browser.Options{Fingerprint: settings.Upstream.TLSFingerprint})

	catalogClient := catalog.NewClient(settings.Catalog.BaseURL, catalogHTTP, settings.Relay.UserAgent)
	bypassClient := bypass.NewClient(settings.Bypass.BaseURL, bypassHTTP)

	registry := sessions.NewRegistry(settings.SessionIdleTTL())
	registry.Start(10 * time.Minute)

	jobs := batch.NewJobs(settings.JobRetention())
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	jobs.StartCleanup(jobsCtx, 5*time.Minute)

	relayHandler := handlers.NewRelayHandler(relayHTTP, handlers.RelayConfig{
		UserAgent:       settings.Relay.UserAgent,
		Referer:         settings.Relay.Referer,
		Origin:          settings.Relay.Origin,
		DefaultFilename: settings.Relay.DefaultFilename,
		HeaderTimeout:   settings.RelayHeaderTimeout(),
		BufferKB:        settings.Relay.BufferKB,
	})
	entryHandler := handlers.NewEntryHandler(catalogClient)
	seriesHandler := handlers.NewSeriesHandler(registry, catalogClient, bypassClient, jobs, settings.Relay.PublicURL, batch.Options{
		MaxParallel:    settings.Batch.MaxParallel,
		FilenameSuffix: settings.Batch.FilenameSuffix,
	})

	r := mux.NewRouter()
	api.Register(r, relayHandler, entryHandler, seriesHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s (relay base %s)\n", addr, settings.Relay.PublicURL)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	stopJobs()
	registry.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	relayHTTP.CloseIdleConnections()
	catalogHTTP.CloseIdleConnections()

	log.Println("✅ Shutdown complete")
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
