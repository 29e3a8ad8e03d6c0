package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/mocks"
	"github.com/ersonp/dimload/internal/domain/ports"
	"github.com/ersonp/dimload/internal/domain/services"
)

func TestWarehouse_RetriesTransientInsert(t *testing.T) {
	inner := mocks.NewWarehouse()
	failures := 2
	inner.BeforeInsert = func(entities.Dimension, string) error {
		if failures > 0 {
			failures--
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}
	wh := NewWarehouse(inner, fastBackoff(3), nil)

	id, err := wh.InsertDimensionValue(context.Background(), entities.DimensionClient, "Acme", nil)

	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 3, inner.InsertCallCount)
	assert.Equal(t, 1, inner.Count(entities.DimensionClient))
}

func TestWarehouse_DuplicateIsNotRetried(t *testing.T) {
	inner := mocks.NewWarehouse()
	inner.Seed(entities.DimensionClient, "Acme", nil)
	wh := NewWarehouse(inner, fastBackoff(3), nil)

	_, err := wh.InsertDimensionValue(context.Background(), entities.DimensionClient, "Acme", nil)

	require.ErrorIs(t, err, ports.ErrDuplicateNaturalKey)
	assert.Equal(t, 1, inner.InsertCallCount)
}

// lostAck commits the first insert and then reports a dropped connection.
func lostAck(inner *mocks.Warehouse) {
	committed := false
	inner.BeforeInsert = func(dim entities.Dimension, naturalKey string) error {
		if committed {
			return nil
		}
		committed = true
		inner.Seed(dim, naturalKey, nil)
		return syscall.ECONNRESET
	}
}

func TestWarehouse_InsertCommittedBeforeConnectionLoss(t *testing.T) {
	inner := mocks.NewWarehouse()
	lostAck(inner)
	wh := NewWarehouse(inner, fastBackoff(3), nil)

	id, err := wh.InsertDimensionValue(context.Background(), entities.DimensionClient, "Acme", nil)

	require.NoError(t, err)
	stored, ok := inner.Value(entities.DimensionClient, "Acme")
	require.True(t, ok)
	assert.Equal(t, stored.SurrogateKey, id)
	assert.Equal(t, 2, inner.InsertCallCount)
	assert.Equal(t, 1, inner.GetCallCount)
	assert.Equal(t, 1, inner.Count(entities.DimensionClient))
}

func TestWarehouse_InsertCommittedBeforeConnectionLoss_CountsAsCreated(t *testing.T) {
	inner := mocks.NewWarehouse()
	lostAck(inner)
	resolver := services.NewDimensionResolver(NewWarehouse(inner, fastBackoff(3), nil), nil)

	_, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionClient, "Acme", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, inner.Count(entities.DimensionClient))
	assert.Equal(t, 1, resolver.Created())
}

func TestWarehouse_DefiniteFailureThenDuplicateIsNotReadBack(t *testing.T) {
	inner := mocks.NewWarehouse()
	calls := 0
	inner.BeforeInsert = func(dim entities.Dimension, naturalKey string) error {
		calls++
		if calls == 1 {
			// Another loader commits while our attempt is rolled back.
			inner.Seed(dim, naturalKey, nil)
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}
	wh := NewWarehouse(inner, fastBackoff(3), nil)

	_, err := wh.InsertDimensionValue(context.Background(), entities.DimensionClient, "Acme", nil)

	require.ErrorIs(t, err, ports.ErrDuplicateNaturalKey)
	assert.Equal(t, 2, inner.InsertCallCount)
	assert.Zero(t, inner.GetCallCount)
}

func TestWarehouse_ReadsRetryNetworkErrors(t *testing.T) {
	inner := mocks.NewWarehouse()
	inner.ListErr = syscall.ECONNRESET
	wh := NewWarehouse(inner, fastBackoff(2), nil)

	_, err := wh.ListDimensionValues(context.Background(), entities.DimensionTask)

	require.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, 3, inner.ListCallCount)
}

func TestWarehouse_AppendOnlyRetriesDefiniteFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, wantCalls: 3},
		{name: "connection reset after send", err: syscall.ECONNRESET, wantCalls: 1},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := mocks.NewWarehouse()
			inner.AppendErr = tt.err
			wh := NewWarehouse(inner, fastBackoff(2), nil)

			err := wh.AppendFactRows(context.Background(), entities.FactTaskLog, []entities.ResolvedFactRecord{{Line: 1}})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, tt.wantCalls, inner.AppendCallCount)
		})
	}
}

func TestWarehouse_PassesThrough(t *testing.T) {
	inner := mocks.NewWarehouse()
	wh := NewWarehouse(inner, fastBackoff(1), nil)
	ctx := context.Background()

	require.NoError(t, wh.EnsureSchema(ctx))
	id, err := wh.InsertDimensionValue(ctx, entities.DimensionEmployee, "Jo", entities.Attributes{entities.AttrRole: "Designer"})
	require.NoError(t, err)

	got, found, err := wh.GetSurrogateKey(ctx, entities.DimensionEmployee, "Jo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	values, err := wh.ListDimensionValues(ctx, entities.DimensionEmployee)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Designer", values[0].Attributes[entities.AttrRole])

	rows := []entities.ResolvedFactRecord{{Line: 1}, {Line: 2}}
	require.NoError(t, wh.AppendFactRows(ctx, entities.FactTaskLog, rows))
	count, err := wh.CountFactRows(ctx, entities.FactTaskLog)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, wh.RecordLoadRun(ctx, &entities.LoadRun{ID: "run-1"}))
	runs, err := wh.ListLoadRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	assert.Equal(t, 1, inner.EnsureSchemaCallCount)
	assert.NoError(t, wh.Close())
}
