// Package ports defines the interfaces the domain needs from infrastructure.
package ports

import (
	"context"
	"errors"

	"github.com/ersonp/dimload/internal/domain/entities"
)

// ErrDuplicateNaturalKey is returned by InsertDimensionValue when the natural key
// already exists in the dimension, typically because another writer inserted it first.
var ErrDuplicateNaturalKey = errors.New("natural key already exists")

// DimensionStore is the durable side of the dimension tables.
// Implementations must enforce uniqueness of (dimension, natural key).
type DimensionStore interface {
	// GetSurrogateKey looks up the surrogate key for a natural key.
	// The bool result is false when the natural key does not exist.
	GetSurrogateKey(ctx context.Context, dim entities.Dimension, naturalKey string) (int64, bool, error)

	// InsertDimensionValue stores a new natural key and returns its surrogate key.
	InsertDimensionValue(ctx context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error)

	// ListDimensionValues returns every value of a dimension ordered by surrogate key.
	ListDimensionValues(ctx context.Context, dim entities.Dimension) ([]entities.DimensionValue, error)
}

// FactSink persists resolved fact rows.
type FactSink interface {
	// AppendFactRows appends rows to the fact table of kind.
	// Either every row is stored or none is.
	AppendFactRows(ctx context.Context, kind entities.FactKind, rows []entities.ResolvedFactRecord) error

	// CountFactRows returns the number of rows stored for kind.
	CountFactRows(ctx context.Context, kind entities.FactKind) (int, error)
}

// RunLedger records the outcome of each load.
type RunLedger interface {
	// RecordLoadRun stores a load run entry.
	RecordLoadRun(ctx context.Context, run *entities.LoadRun) error

	// ListLoadRuns returns the most recent load runs, newest first.
	ListLoadRuns(ctx context.Context, limit int) ([]entities.LoadRun, error)
}

// Warehouse is the full storage contract of the loader.
type Warehouse interface {
	DimensionStore
	FactSink
	RunLedger

	// EnsureSchema creates the warehouse tables if they don't exist.
	EnsureSchema(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
