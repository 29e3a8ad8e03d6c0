package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
)

// Warehouse retries transient failures of the wrapped warehouse.
//
// Fact appends are only repeated when the failed attempt is known to have had no
// effect. Dimension inserts may be repeated after an ambiguous failure: when the
// repeat reports ErrDuplicateNaturalKey the stored key is read back and returned
// as the result of the insert.
type Warehouse struct {
	next       ports.Warehouse
	classifier *WarehouseClassifier
	exec       *Executor
	strict     *Executor
}

// NewWarehouse wraps next with bounded retries.
func NewWarehouse(next ports.Warehouse, backoff *Backoff, logger *slog.Logger) *Warehouse {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	classifier := NewWarehouseClassifier()
	logRetry := func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying warehouse operation", "attempt", attempt, "delay", delay, "error", err)
	}

	return &Warehouse{
		next:       next,
		classifier: classifier,
		exec:       NewExecutor(classifier, backoff).WithOnRetry(logRetry),
		strict:     NewExecutor(ClassifierFunc(classifier.IsDefiniteFailure), backoff).WithOnRetry(logRetry),
	}
}

var _ ports.Warehouse = (*Warehouse)(nil)

// EnsureSchema creates the warehouse tables.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	return w.exec.Execute(ctx, w.next.EnsureSchema)
}

// Close closes the wrapped warehouse.
func (w *Warehouse) Close() error {
	return w.next.Close()
}

// GetSurrogateKey looks up a natural key.
func (w *Warehouse) GetSurrogateKey(ctx context.Context, dim entities.Dimension, naturalKey string) (int64, bool, error) {
	var (
		id    int64
		found bool
	)
	err := w.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		id, found, err = w.next.GetSurrogateKey(ctx, dim, naturalKey)
		return err
	})
	return id, found, err
}

// InsertDimensionValue inserts a new natural key. A duplicate reported after an
// attempt whose outcome is unknown is the earlier attempt's own row.
func (w *Warehouse) InsertDimensionValue(ctx context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error) {
	var (
		id        int64
		uncertain bool
	)
	err := w.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = w.next.InsertDimensionValue(ctx, dim, naturalKey, attrs)
		if uncertain && errors.Is(err, ports.ErrDuplicateNaturalKey) {
			return w.readBack(ctx, dim, naturalKey, &id)
		}
		if err != nil && !w.classifier.IsDefiniteFailure(err) {
			uncertain = true
		}
		return err
	})
	return id, err
}

func (w *Warehouse) readBack(ctx context.Context, dim entities.Dimension, naturalKey string, id *int64) error {
	got, found, err := w.next.GetSurrogateKey(ctx, dim, naturalKey)
	if err != nil {
		return err
	}
	if !found {
		return ports.ErrDuplicateNaturalKey
	}
	*id = got
	return nil
}

// ListDimensionValues lists every value of a dimension.
func (w *Warehouse) ListDimensionValues(ctx context.Context, dim entities.Dimension) ([]entities.DimensionValue, error) {
	var values []entities.DimensionValue
	err := w.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		values, err = w.next.ListDimensionValues(ctx, dim)
		return err
	})
	return values, err
}

// AppendFactRows appends a batch of fact rows, retrying only definite failures.
func (w *Warehouse) AppendFactRows(ctx context.Context, kind entities.FactKind, rows []entities.ResolvedFactRecord) error {
	return w.strict.Execute(ctx, func(ctx context.Context) error {
		return w.next.AppendFactRows(ctx, kind, rows)
	})
}

// CountFactRows counts the rows of a fact table.
func (w *Warehouse) CountFactRows(ctx context.Context, kind entities.FactKind) (int, error) {
	var n int
	err := w.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = w.next.CountFactRows(ctx, kind)
		return err
	})
	return n, err
}

// RecordLoadRun writes a run ledger entry.
func (w *Warehouse) RecordLoadRun(ctx context.Context, run *entities.LoadRun) error {
	return w.strict.Execute(ctx, func(ctx context.Context) error {
		return w.next.RecordLoadRun(ctx, run)
	})
}

// ListLoadRuns lists recent run ledger entries.
func (w *Warehouse) ListLoadRuns(ctx context.Context, limit int) ([]entities.LoadRun, error) {
	var runs []entities.LoadRun
	err := w.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		runs, err = w.next.ListLoadRuns(ctx, limit)
		return err
	})
	return runs, err
}
