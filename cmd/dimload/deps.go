package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ersonp/dimload/internal/application/handlers"
	"github.com/ersonp/dimload/internal/domain/ports"
	"github.com/ersonp/dimload/internal/domain/services"
	"github.com/ersonp/dimload/internal/infrastructure/config"
	"github.com/ersonp/dimload/internal/infrastructure/retry"
	"github.com/ersonp/dimload/internal/infrastructure/warehouse/postgres"
	"github.com/ersonp/dimload/internal/infrastructure/warehouse/sqlite"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config         *config.Config
	Logger         *slog.Logger
	LoadHandler    *handlers.LoadHandler
	CatalogHandler *handlers.CatalogHandler
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	basePath, err := projectDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg, globalLogLevel)
	if err != nil {
		return err
	}

	wh, err := openWarehouse(ctx, cfg, basePath)
	if err != nil {
		return fmt.Errorf("opening warehouse: %w", err)
	}
	defer wh.Close()

	resilient := retry.NewWarehouse(wh, newBackoff(cfg.Retry), logger)

	// Ensure schema exists
	if err := resilient.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring warehouse schema: %w", err)
	}

	deps := &Deps{
		Config:         cfg,
		Logger:         logger,
		LoadHandler:    handlers.NewLoadHandler(services.NewBatchOrchestrator(resilient, logger)),
		CatalogHandler: handlers.NewCatalogHandler(services.NewCatalogService(resilient)),
	}

	return fn(deps)
}

// projectDir returns the directory holding .dimload.
func projectDir() (string, error) {
	if globalDir != "" {
		return globalDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// openWarehouse connects to the backend selected by cfg.Warehouse.Driver.
func openWarehouse(ctx context.Context, cfg *config.Config, basePath string) (ports.Warehouse, error) {
	switch cfg.Warehouse.Driver {
	case config.DriverSQLite:
		repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: cfg.SQLitePath(basePath)})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite repository: %w", err)
		}
		return repo, nil
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(ctx, config.PostgresConfig{
			DSN:    cfg.Postgres.DSN,
			Schema: cfg.PostgresSchema(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres repository: %w", err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Warehouse.Driver)
}

// newBackoff builds the retry policy from config.
func newBackoff(cfg config.RetryConfig) *retry.Backoff {
	var opts []retry.BackoffOption
	if cfg.InitialDelay > 0 {
		opts = append(opts, retry.WithInitialDelay(cfg.InitialDelay))
	}
	if cfg.MaxDelay > 0 {
		opts = append(opts, retry.WithMaxDelay(cfg.MaxDelay))
	}
	return retry.NewBackoff(cfg.MaxAttempts, opts...)
}

// newLogger writes text logs to stderr at the configured level.
// A non-empty override takes precedence over the config file.
func newLogger(cfg *config.Config, override string) (*slog.Logger, error) {
	if override != "" {
		cfg.Log.Level = override
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
