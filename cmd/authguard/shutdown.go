package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// run serves until SIGINT or SIGTERM, or until the server fails, then
// shuts down.
func run(ctx context.Context, app *application, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	app.close(shutdownCtx, logger)

	logger.Info("authguard stopped")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// close releases components in dependency order: server, schedulers,
// recorder, sinks, caches, stores, tracer.
func (app *application) close(ctx context.Context, logger observability.Logger) {
	if app.server != nil {
		if err := app.server.Stop(ctx); err != nil {
			logger.Error("failed to stop server gracefully", observability.Error(err))
		}
	}

	for _, s := range app.schedulers {
		s.Stop()
	}

	if app.recorder != nil {
		if err := app.recorder.Close(); err != nil {
			logger.Error("failed to flush audit events", observability.Error(err))
		}
	}

	closeAll("alert sink", app.sinks, logger)
	closeAll("cache", app.caches, logger)
	closeAll("store", app.stores, logger)

	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}

// closeAll closes in reverse order of creation.
func closeAll(kind string, closers []io.Closer, logger observability.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("failed to close "+kind, observability.Error(err))
		}
	}
}
