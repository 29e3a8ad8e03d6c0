package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Batch is a set of fact records of a single kind loaded together.
type Batch struct {
	Kind    entities.FactKind
	Source  string // where the records came from, recorded in the run ledger
	Records []entities.FactRecord
}

// LoadSummary reports the outcome of one batch.
type LoadSummary struct {
	RunID     string
	Kind      entities.FactKind
	Processed int // records in the batch
	Dropped   int // records skipped for a missing natural key
	Clamped   int // negative measures set to 0
	Created   int // dimension values inserted
	Appended  int // fact rows handed to the sink
	Issues    []LoadIssue
}

// BatchOrchestrator drives one load cycle: resolve every distinct dimension value of
// the batch, reconcile the facts against the warm caches, then append them. Caches
// live for one batch.
type BatchOrchestrator struct {
	warehouse  ports.Warehouse
	resolver   *DimensionResolver
	reconciler *FactReconciler
	logger     *slog.Logger
}

// NewBatchOrchestrator creates an orchestrator that owns its dimension caches.
func NewBatchOrchestrator(warehouse ports.Warehouse, logger *slog.Logger) *BatchOrchestrator {
	logger = orDiscard(logger)
	resolver := NewDimensionResolver(warehouse, logger)
	return &BatchOrchestrator{
		warehouse:  warehouse,
		resolver:   resolver,
		reconciler: NewFactReconciler(resolver, logger),
		logger:     logger,
	}
}

// Load reconciles and appends a batch. On error nothing from the batch reaches the
// fact sink. Every attempt is recorded in the run ledger. Dimension caches are
// reloaded from storage at the start of each batch.
func (o *BatchOrchestrator) Load(ctx context.Context, batch Batch) (*LoadSummary, error) {
	if !batch.Kind.IsValid() {
		return nil, fmt.Errorf("invalid fact kind %q", batch.Kind)
	}
	if err := checkBatchKind(batch); err != nil {
		return nil, err
	}

	run := &entities.LoadRun{
		ID:        uuid.New().String(),
		Kind:      batch.Kind,
		Source:    batch.Source,
		StartedAt: timeNow(),
	}
	summary := &LoadSummary{
		RunID:     run.ID,
		Kind:      batch.Kind,
		Processed: len(batch.Records),
	}

	o.logger.Info("loading batch", "run_id", run.ID, "kind", batch.Kind, "records", len(batch.Records))

	o.resolver.Reload()
	createdBefore := o.resolver.Created()
	err := o.load(ctx, batch, summary)
	summary.Created = o.resolver.Created() - createdBefore

	o.recordRun(ctx, run, summary, err)
	if err != nil {
		o.logger.Error("batch failed", "run_id", run.ID, "error", err)
		return nil, err
	}

	o.logger.Info("batch loaded",
		"run_id", run.ID,
		"appended", summary.Appended,
		"dropped", summary.Dropped,
		"clamped", summary.Clamped,
		"created", summary.Created,
	)
	return summary, nil
}

func (o *BatchOrchestrator) load(ctx context.Context, batch Batch, summary *LoadSummary) error {
	if err := o.resolveDistinct(ctx, batch.Records); err != nil {
		return err
	}

	result, err := o.reconciler.Reconcile(ctx, batch.Records)
	if err != nil {
		return err
	}
	summary.Dropped = result.Dropped
	summary.Clamped = result.Clamped
	summary.Issues = result.Issues

	if len(result.Rows) == 0 {
		return nil
	}
	if err := o.warehouse.AppendFactRows(ctx, batch.Kind, result.Rows); err != nil {
		return &PersistenceError{Op: "appending", Kind: batch.Kind, Err: err}
	}
	summary.Appended = len(result.Rows)
	return nil
}

// dimensionRef is one distinct natural key referenced by a batch.
type dimensionRef struct {
	dim   entities.Dimension
	key   string
	attrs entities.Attributes
}

// resolveDistinct resolves each distinct natural key of the batch exactly once.
func (o *BatchOrchestrator) resolveDistinct(ctx context.Context, records []entities.FactRecord) error {
	refs := collectDistinct(records)
	for _, ref := range refs {
		if _, err := o.resolver.ResolveOrCreate(ctx, ref.dim, ref.key, ref.attrs); err != nil {
			return err
		}
	}
	o.logger.Debug("resolved distinct dimension values", "count", len(refs))
	return nil
}

// collectDistinct returns the distinct natural keys of the usable records in order of
// first appearance. The first record naming an employee supplies its attributes.
func collectDistinct(records []entities.FactRecord) []dimensionRef {
	type seenKey struct {
		dim entities.Dimension
		key string
	}
	seen := make(map[seenKey]struct{})
	var refs []dimensionRef

	for i := range records {
		rec := &records[i]
		if validateRecord(rec, lineOf(rec, i)) != nil {
			continue
		}
		for _, dim := range entities.AllDimensions {
			k := seenKey{dim: dim, key: entities.NormalizeNaturalKey(rec.Keys.Get(dim))}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			refs = append(refs, dimensionRef{dim: dim, key: k.key, attrs: attributesFor(dim, rec)})
		}
	}
	return refs
}

// checkBatchKind rejects records whose measures belong to another fact kind.
func checkBatchKind(batch Batch) error {
	for i := range batch.Records {
		rec := &batch.Records[i]
		if !hasMeasures(rec.Measures) {
			continue
		}
		if kind := rec.Measures.Kind(); kind != batch.Kind {
			return fmt.Errorf("line %d: %w: got %s, want %s", lineOf(rec, i), ErrMixedBatch, kind, batch.Kind)
		}
	}
	return nil
}

// recordRun writes the ledger entry. Ledger failures never change the batch outcome.
func (o *BatchOrchestrator) recordRun(ctx context.Context, run *entities.LoadRun, summary *LoadSummary, loadErr error) {
	run.FinishedAt = timeNow()
	run.Processed = summary.Processed
	run.Dropped = summary.Dropped
	run.Clamped = summary.Clamped
	run.Created = summary.Created
	run.Appended = summary.Appended
	run.Status = entities.LoadRunSuccess
	if loadErr != nil {
		run.Status = entities.LoadRunFailed
		run.Error = loadErr.Error()
	}

	if err := o.warehouse.RecordLoadRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("recording load run", "run_id", run.ID, "error", err)
	}
}
