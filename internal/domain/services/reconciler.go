package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ersonp/dimload/internal/domain/entities"
)

// KeyResolver resolves a natural key to a surrogate key.
type KeyResolver interface {
	ResolveOrCreate(ctx context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error)
}

// ReconcileResult contains the rows ready for the fact sink and what was fixed on the way.
type ReconcileResult struct {
	Rows    []entities.ResolvedFactRecord
	Dropped int
	Clamped int
	Issues  []LoadIssue
}

// FactReconciler rewrites natural keys into surrogate keys and sanitizes measures.
type FactReconciler struct {
	resolver KeyResolver
	logger   *slog.Logger
}

// NewFactReconciler creates a new fact reconciler.
func NewFactReconciler(resolver KeyResolver, logger *slog.Logger) *FactReconciler {
	return &FactReconciler{
		resolver: resolver,
		logger:   orDiscard(logger),
	}
}

// Reconcile converts records into resolved rows, preserving input order.
// Records missing a natural key or their required date are dropped; negative
// measures are clamped to zero.
// A resolver error aborts the whole batch and no rows are returned.
func (c *FactReconciler) Reconcile(ctx context.Context, records []entities.FactRecord) (*ReconcileResult, error) {
	result := &ReconcileResult{
		Rows: make([]entities.ResolvedFactRecord, 0, len(records)),
	}

	for i := range records {
		rec := &records[i]
		line := lineOf(rec, i)

		if issue := validateRecord(rec, line); issue != nil {
			result.Dropped++
			result.Issues = append(result.Issues, *issue)
			continue
		}

		keys, err := c.resolveKeys(ctx, rec)
		if err != nil {
			return nil, err
		}

		row := entities.ResolvedFactRecord{Line: line, Keys: keys}
		var clamp *LoadIssue
		switch m := rec.Measures.(type) {
		case *entities.TaskLogMeasures:
			row.Measures, clamp = reconcileTaskLog(m, line)
		case *entities.AllocationMeasures:
			row.Measures, clamp = reconcileAllocation(m, line)
		}
		if clamp != nil {
			result.Clamped++
			result.Issues = append(result.Issues, *clamp)
		}

		result.Rows = append(result.Rows, row)
	}

	if result.Dropped > 0 {
		c.logger.Warn("dropped records missing required fields", "count", result.Dropped)
	}
	if result.Clamped > 0 {
		c.logger.Warn("negative measures set to 0", "count", result.Clamped)
	}
	return result, nil
}

// resolveKeys resolves all four dimension references of a validated record.
func (c *FactReconciler) resolveKeys(ctx context.Context, rec *entities.FactRecord) (entities.SurrogateKeys, error) {
	var keys entities.SurrogateKeys
	for _, dim := range entities.AllDimensions {
		id, err := c.resolver.ResolveOrCreate(ctx, dim, rec.Keys.Get(dim), attributesFor(dim, rec))
		if err != nil {
			return entities.SurrogateKeys{}, err
		}
		keys.Set(dim, id)
	}
	return keys, nil
}

func reconcileTaskLog(m *entities.TaskLogMeasures, line int) (*entities.TaskLogMeasures, *LoadIssue) {
	out := *m
	hours, clamped := clampNonNegative(m.Hours)
	out.Hours = hours
	if !clamped {
		return &out, nil
	}
	return &out, clampIssue("hours", m.Hours, line)
}

func reconcileAllocation(m *entities.AllocationMeasures, line int) (*entities.AllocationMeasures, *LoadIssue) {
	out := *m
	hours, clamped := clampNonNegative(m.EstimatedHours)
	out.EstimatedHours = hours
	if !clamped {
		return &out, nil
	}
	return &out, clampIssue("estimated_hours", m.EstimatedHours, line)
}

// clampNonNegative returns max(d, 0) and whether d was negative.
func clampNonNegative(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.IsNegative() {
		return decimal.Zero, true
	}
	return d, false
}

func clampIssue(field string, value decimal.Decimal, line int) *LoadIssue {
	return &LoadIssue{
		Kind:    IssueMeasureClamp,
		Line:    line,
		Field:   field,
		Value:   value.String(),
		Message: fmt.Sprintf("negative %s %s set to 0", field, value.String()),
	}
}

// validateRecord reports why a record must be dropped, or nil if it is usable.
// It never touches storage.
func validateRecord(rec *entities.FactRecord, line int) *LoadIssue {
	for _, dim := range entities.AllDimensions {
		if entities.NormalizeNaturalKey(rec.Keys.Get(dim)) == "" {
			return &LoadIssue{
				Kind:    IssueValidationDrop,
				Line:    line,
				Field:   string(dim),
				Message: fmt.Sprintf("missing required field: %s", dim),
			}
		}
	}
	if !hasMeasures(rec.Measures) {
		return &LoadIssue{
			Kind:    IssueValidationDrop,
			Line:    line,
			Field:   "measures",
			Message: "missing measures",
		}
	}
	if field := missingDate(rec.Measures); field != "" {
		return &LoadIssue{
			Kind:    IssueValidationDrop,
			Line:    line,
			Field:   field,
			Message: fmt.Sprintf("missing required field: %s", field),
		}
	}
	return nil
}

// missingDate names the required date field a measure set lacks, if any.
// An allocation without an end date is open-ended.
func missingDate(m entities.FactMeasures) string {
	switch v := m.(type) {
	case *entities.TaskLogMeasures:
		if v.Date.IsZero() {
			return "date"
		}
	case *entities.AllocationMeasures:
		if v.StartDate.IsZero() {
			return "start_date"
		}
	}
	return ""
}

func hasMeasures(m entities.FactMeasures) bool {
	switch v := m.(type) {
	case *entities.TaskLogMeasures:
		return v != nil
	case *entities.AllocationMeasures:
		return v != nil
	}
	return false
}

func attributesFor(dim entities.Dimension, rec *entities.FactRecord) entities.Attributes {
	if dim != entities.DimensionEmployee {
		return nil
	}
	role := entities.NormalizeNaturalKey(rec.Role)
	if role == "" {
		return nil
	}
	return entities.Attributes{entities.AttrRole: role}
}

func lineOf(rec *entities.FactRecord, index int) int {
	if rec.Line > 0 {
		return rec.Line
	}
	return index + 1
}
