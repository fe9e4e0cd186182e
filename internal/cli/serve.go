package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/ragloop/pkg/adapters/http"
	"github.com/aretw0/ragloop/pkg/adapters/mcp"
)

const shutdownTimeout = 5 * time.Second

// NewHTTPHandler builds the HTTP surface of app. streams must also be installed
// as a trace sink through BuildOptions.Sinks for /v1/events to carry events.
func NewHTTPHandler(app *App, streams *httpAdapter.StreamManager) http.Handler {
	opts := []httpAdapter.Option{httpAdapter.WithLogger(app.Logger)}
	if app.Config.Server.Metrics {
		opts = append(opts, httpAdapter.WithMetrics(app.Registry))
	}
	if streams != nil {
		opts = append(opts, httpAdapter.WithStreams(streams))
	}
	return httpAdapter.NewHandler(app.Engine, opts...)
}

// Serve runs the HTTP server on addr until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, handler http.Handler, addr string, app *App) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("Starting ragloop server", "addr", addr, "retriever", app.Config.Retriever.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		app.Logger.Info("Start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		app.Logger.Info("ragloop server stopped gracefully")
		return nil
	}
}

// ServeMCP exposes app as an MCP server over stdio or SSE.
func ServeMCP(ctx context.Context, app *App, transport string, port int) error {
	srv := mcp.NewServer(app.Engine, app.Logger)

	switch transport {
	case "stdio":
		app.Logger.Info("Starting ragloop MCP server (stdio)")
		return srv.ServeStdio()
	case "sse":
		app.Logger.Info("Starting ragloop MCP server (SSE)", "port", port)
		return srv.ServeSSE(ctx, port)
	default:
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
	}
}
