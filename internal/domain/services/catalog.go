package services

import (
	"context"
	"fmt"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
)

// DefaultRunLimit is the number of ledger entries returned when no limit is given.
const DefaultRunLimit = 20

// CatalogService answers read-only questions about the warehouse.
type CatalogService struct {
	warehouse ports.Warehouse
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(warehouse ports.Warehouse) *CatalogService {
	return &CatalogService{
		warehouse: warehouse,
	}
}

// Dimension lists every value of a dimension.
func (s *CatalogService) Dimension(ctx context.Context, dim entities.Dimension) ([]entities.DimensionValue, error) {
	if !dim.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
	values, err := s.warehouse.ListDimensionValues(ctx, dim)
	if err != nil {
		return nil, fmt.Errorf("listing %s dimension: %w", dim, err)
	}
	return values, nil
}

// Runs returns the most recent load runs, newest first.
func (s *CatalogService) Runs(ctx context.Context, limit int) ([]entities.LoadRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs, err := s.warehouse.ListLoadRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing load runs: %w", err)
	}
	return runs, nil
}

// FactCount is the number of rows in one fact table.
type FactCount struct {
	Kind entities.FactKind
	Rows int
}

// FactCounts returns the row count of every fact table.
func (s *CatalogService) FactCounts(ctx context.Context) ([]FactCount, error) {
	kinds := []entities.FactKind{entities.FactTaskLog, entities.FactProjectAllocation}
	counts := make([]FactCount, 0, len(kinds))
	for _, kind := range kinds {
		n, err := s.warehouse.CountFactRows(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("counting %s rows: %w", kind, err)
		}
		counts = append(counts, FactCount{Kind: kind, Rows: n})
	}
	return counts, nil
}
