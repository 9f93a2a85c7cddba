// Conclave - multi-agent deliberation server
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

	"github.com/ashureev/conclave/internal/api"
	"github.com/ashureev/conclave/internal/config"
	"github.com/ashureev/conclave/internal/deliberation"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/llm"
	"github.com/ashureev/conclave/internal/middleware"
	"github.com/ashureev/conclave/internal/search"
	"github.com/ashureev/conclave/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "model", cfg.Model.Name, "search_enabled", cfg.SearchEnabled())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	hub := events.NewHub()

	modelGateway := llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		Timeout: cfg.Model.Timeout,
	}, logger)

	var searchGateway search.Gateway
	if cfg.SearchEnabled() {
		searchGateway = search.NewClient(search.ClientConfig{
			Endpoint: cfg.Search.Endpoint,
			APIKey:   cfg.Search.APIKey,
			Timeout:  cfg.Search.Timeout,
		}, logger)
		slog.Info("Search gateway configured", "endpoint", cfg.Search.Endpoint)
	} else {
		slog.Info("Search gateway not configured, search sub-protocol disabled")
	}

	ledger := deliberation.NewLedger(repo, hub)
	executor := deliberation.NewTurnExecutor(repo, hub, modelGateway, searchGateway,
		deliberation.MarkerExtractor{}, ledger, cfg.Deliberation, logger)
	mgr := deliberation.NewManager(repo, hub, executor, ledger, cfg.Deliberation, logger)

	// Initialize handlers.
	handler := api.NewHandler(mgr)
	wsHandler := events.NewWebSocketHandler(hub, cfg.AllowedOrigin)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.AllowedOrigin}))

	handler.RegisterRoutes(r)

	// WebSocket observer endpoints.
	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)
	r.Get("/ws/sessions", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket observers hold long-lived connections (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mgr.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
