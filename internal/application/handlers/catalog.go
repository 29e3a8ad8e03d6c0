package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/services"
)

// CatalogHandler handles read-only warehouse queries.
type CatalogHandler struct {
	catalog *services.CatalogService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
	}
}

// DimensionResult lists the values of one dimension.
type DimensionResult struct {
	Dimension entities.Dimension
	Values    []entities.DimensionValue
}

// HandleDimension lists the values of the named dimension.
func (h *CatalogHandler) HandleDimension(ctx context.Context, name string) (*DimensionResult, error) {
	dim := entities.Dimension(strings.ToLower(strings.TrimSpace(name)))
	values, err := h.catalog.Dimension(ctx, dim)
	if err != nil {
		return nil, err
	}
	return &DimensionResult{
		Dimension: dim,
		Values:    values,
	}, nil
}

// RunsResult contains recent load runs and current fact table sizes.
type RunsResult struct {
	Runs       []entities.LoadRun
	FactCounts []services.FactCount
}

// HandleRuns returns up to limit recent load runs and the fact table sizes.
func (h *CatalogHandler) HandleRuns(ctx context.Context, limit int) (*RunsResult, error) {
	runs, err := h.catalog.Runs(ctx, limit)
	if err != nil {
		return nil, err
	}

	counts, err := h.catalog.FactCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading fact tables: %w", err)
	}

	return &RunsResult{
		Runs:       runs,
		FactCounts: counts,
	}, nil
}
