// Package app owns the process lifecycle: it wires the configured backends,
// assembles the ledger, order store, messenger and engine on top of them, and
// runs the goroutines of the selected mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/zetatrigger/internal/config"
)

// App is the root application object. Cleanup functions run in reverse
// registration order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, restores persisted state and blocks in the
// configured mode until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("oracle", a.cfg.Oracle.Source),
		slog.String("executor", a.cfg.Swap.Executor),
		slog.Bool("settlement", a.cfg.Messenger.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)

	c, err := Build(ctx, a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("app: build components: %w", err)
	}

	switch mode {
	case "engine":
		return a.EngineMode(ctx, deps, c)
	case "server":
		return a.ServerMode(ctx, deps, c)
	case "feeder":
		return a.FeederMode(ctx, deps, c)
	case "full":
		return a.FullMode(ctx, deps, c)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
