// Package main provides the lecture assistant server: the HTTP API, the chat
// stream, the MCP endpoint and health checks.
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

	"github.com/bull/lecture-rag/internal/api"
	"github.com/bull/lecture-rag/internal/app"
	"github.com/bull/lecture-rag/internal/config"
	mcpserver "github.com/bull/lecture-rag/internal/mcp"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}()

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{
		Retrieval: a.Retrieval,
		Version:   version,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	api.NewHandler(mux, api.Config{
		Retrieval:  a.Retrieval,
		Chat:       a.Chat,
		History:    a.Chats,
		UserHeader: cfg.Server.UserHeader,
		Logger:     logger,
	})
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcpSrv, nil))
	mux.HandleFunc("GET /health", api.NewHealthHandler(healthChecks(a)...))
	mux.HandleFunc("GET /{$}", api.NewLandingHandler())

	// Stdio mode serves MCP to a local client; HTTP keeps running for the API.
	if os.Getenv("SERVER_MODE") == "stdio" {
		go func() {
			if err := serve(ctx, cfg.Addr(), mux, logger); err != nil {
				logger.Warn("HTTP server error", "error", err)
			}
		}()
		logger.Info("Starting MCP server (stdio mode)")
		return mcpSrv.Run(ctx)
	}

	// Connecting to the vector index happens on first use; warm it so the
	// first request does not pay for it.
	go func() {
		if !a.Index.Available(ctx) {
			logger.Warn("Vector index unavailable, search falls back to substring matching")
		}
	}()

	return serve(ctx, cfg.Addr(), mux, logger)
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthChecks(a *app.App) []api.HealthCheck {
	return []api.HealthCheck{
		{Name: "store", Required: true, Check: a.DB.Health},
		{Name: "vector_index", Check: func(ctx context.Context) error {
			qs := a.Qdrant()
			if qs == nil {
				return errors.New("not connected")
			}
			return qs.Health(ctx)
		}},
		{Name: "embeddings", Check: func(context.Context) error {
			if !a.Embedder.Available() {
				return errors.New("using fallback embeddings")
			}
			return nil
		}},
		{Name: "llm", Check: func(context.Context) error {
			if !a.LLM.Available() {
				return errors.New("no api key")
			}
			return nil
		}},
	}
}
