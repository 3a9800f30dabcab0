package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Start launches the HTTP server and returns a channel that is closed once a
// termination signal arrives.
func (a *App) Start() <-chan struct{} {
	done := make(chan struct{})

	go a.serveHTTP()
	go a.awaitSignal(done)

	return done
}

func (a *App) serveHTTP() {
	slog.Info("http server listening", "address", a.httpServer.Addr)

	if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("failed to listen and serve http server", "error", err)
		os.Exit(1)
	}
}

func (a *App) awaitSignal(done chan<- struct{}) {
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigint)

	<-sigint

	if a.cancel != nil {
		a.cancel()
	}

	close(done)

	slog.Info("application gracefully shutdown")
}

// Stop drains in-flight work and releases resources in dependency order.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to close resources", "name", "HTTP Server", "error", err)
	}

	slog.InfoContext(ctx, "waiting for all goroutine to finish")

	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "error from goroutines executions", "error", err)
	}

	slog.InfoContext(ctx, "all goroutines have finished successfully")

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", c.name, "error", err)
		}
	}
}
