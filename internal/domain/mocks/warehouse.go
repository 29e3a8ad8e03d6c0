// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sort"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
)

// Warehouse is an in-memory implementation of ports.Warehouse.
// It enforces natural-key uniqueness like a real backend.
type Warehouse struct {
	Facts map[entities.FactKind][]entities.ResolvedFactRecord
	Runs  []entities.LoadRun

	// Err is returned by every method when set.
	Err error

	// Per-method errors (separate from Err for fine-grained control)
	GetErr    error
	InsertErr error
	ListErr   error
	AppendErr error
	RecordErr error

	// BeforeInsert runs before each insert; a non-nil result is returned
	// from InsertDimensionValue without storing anything.
	BeforeInsert func(dim entities.Dimension, naturalKey string) error

	// Call tracking
	EnsureSchemaCallCount int
	GetCallCount          int
	InsertCallCount       int
	ListCallCount         int
	AppendCallCount       int
	RecordCallCount       int

	values map[entities.Dimension]map[string]entities.DimensionValue
	nextID map[entities.Dimension]int64
}

// NewWarehouse creates an empty mock warehouse.
func NewWarehouse() *Warehouse {
	return &Warehouse{
		Facts:  make(map[entities.FactKind][]entities.ResolvedFactRecord),
		values: make(map[entities.Dimension]map[string]entities.DimensionValue),
		nextID: make(map[entities.Dimension]int64),
	}
}

var _ ports.Warehouse = (*Warehouse)(nil)

// Seed stores a dimension value directly, bypassing call tracking and injected errors.
// It returns the existing surrogate key when the natural key is already present.
func (m *Warehouse) Seed(dim entities.Dimension, naturalKey string, attrs entities.Attributes) int64 {
	if v, ok := m.values[dim][naturalKey]; ok {
		return v.SurrogateKey
	}
	if m.values[dim] == nil {
		m.values[dim] = make(map[string]entities.DimensionValue)
	}
	m.nextID[dim]++
	id := m.nextID[dim]
	m.values[dim][naturalKey] = entities.DimensionValue{
		Dimension:    dim,
		NaturalKey:   naturalKey,
		SurrogateKey: id,
		Attributes:   attrs,
	}
	return id
}

// Value returns the stored dimension value for a natural key.
func (m *Warehouse) Value(dim entities.Dimension, naturalKey string) (entities.DimensionValue, bool) {
	v, ok := m.values[dim][naturalKey]
	return v, ok
}

// Count returns the number of values stored for dim.
func (m *Warehouse) Count(dim entities.Dimension) int {
	return len(m.values[dim])
}

// EnsureSchema is a no-op.
func (m *Warehouse) EnsureSchema(_ context.Context) error {
	m.EnsureSchemaCallCount++
	return m.Err
}

// Close is a no-op.
func (m *Warehouse) Close() error {
	return nil
}

// GetSurrogateKey looks up a natural key.
func (m *Warehouse) GetSurrogateKey(_ context.Context, dim entities.Dimension, naturalKey string) (int64, bool, error) {
	m.GetCallCount++
	if err := m.firstErr(m.GetErr); err != nil {
		return 0, false, err
	}
	v, ok := m.values[dim][naturalKey]
	return v.SurrogateKey, ok, nil
}

// InsertDimensionValue stores a new natural key.
func (m *Warehouse) InsertDimensionValue(_ context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error) {
	m.InsertCallCount++
	if err := m.firstErr(m.InsertErr); err != nil {
		return 0, err
	}
	if m.BeforeInsert != nil {
		if err := m.BeforeInsert(dim, naturalKey); err != nil {
			return 0, err
		}
	}
	if _, ok := m.values[dim][naturalKey]; ok {
		return 0, ports.ErrDuplicateNaturalKey
	}
	return m.Seed(dim, naturalKey, attrs), nil
}

// ListDimensionValues returns all values of dim ordered by surrogate key.
func (m *Warehouse) ListDimensionValues(_ context.Context, dim entities.Dimension) ([]entities.DimensionValue, error) {
	m.ListCallCount++
	if err := m.firstErr(m.ListErr); err != nil {
		return nil, err
	}
	result := make([]entities.DimensionValue, 0, len(m.values[dim]))
	for _, v := range m.values[dim] {
		result = append(result, v)
	}
	// Sort by surrogate key for deterministic test results
	sort.Slice(result, func(i, j int) bool {
		return result[i].SurrogateKey < result[j].SurrogateKey
	})
	return result, nil
}

// AppendFactRows appends rows to the in-memory fact table.
func (m *Warehouse) AppendFactRows(_ context.Context, kind entities.FactKind, rows []entities.ResolvedFactRecord) error {
	m.AppendCallCount++
	if err := m.firstErr(m.AppendErr); err != nil {
		return err
	}
	m.Facts[kind] = append(m.Facts[kind], rows...)
	return nil
}

// CountFactRows returns the number of appended rows of kind.
func (m *Warehouse) CountFactRows(_ context.Context, kind entities.FactKind) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.Facts[kind]), nil
}

// RecordLoadRun stores a run entry.
func (m *Warehouse) RecordLoadRun(_ context.Context, run *entities.LoadRun) error {
	m.RecordCallCount++
	if err := m.firstErr(m.RecordErr); err != nil {
		return err
	}
	m.Runs = append(m.Runs, *run)
	return nil
}

// ListLoadRuns returns recorded runs, newest first.
func (m *Warehouse) ListLoadRuns(_ context.Context, limit int) ([]entities.LoadRun, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.LoadRun, 0, len(m.Runs))
	for i := len(m.Runs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.Runs[i])
	}
	return result, nil
}

func (m *Warehouse) firstErr(specific error) error {
	if m.Err != nil {
		return m.Err
	}
	return specific
}
