// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/dimload/internal/domain/ports"
	"github.com/ersonp/dimload/internal/infrastructure/config"
)

// Connector opens the warehouse described by a config.
type Connector func(ctx context.Context, cfg *config.Config, basePath string) (ports.Warehouse, error)

// InitHandler handles project initialization.
type InitHandler struct {
	connect Connector
}

// NewInitHandler creates a new init handler.
func NewInitHandler(connect Connector) *InitHandler {
	return &InitHandler{
		connect: connect,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath string
	Driver     string
}

// Handle writes the default config and creates the warehouse tables.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (result *InitResult, err error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("dimload already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	wh, err := h.connect(ctx, cfg, basePath)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse: %w", err)
	}
	defer func() {
		err = errors.Join(err, wh.Close())
	}()

	if err := wh.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating warehouse schema: %w", err)
	}

	return &InitResult{
		ConfigPath: config.ConfigFilePath(basePath),
		Driver:     cfg.Warehouse.Driver,
	}, nil
}
