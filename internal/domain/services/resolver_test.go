package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/mocks"
	"github.com/ersonp/dimload/internal/domain/ports"
)

func TestDimensionResolver_ResolveOrCreate_Idempotent(t *testing.T) {
	wh := mocks.NewWarehouse()
	resolver := NewDimensionResolver(wh, nil)
	ctx := context.Background()

	first, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.NoError(t, err)

	second, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "  Acme ", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, wh.Count(entities.DimensionClient))
	assert.Equal(t, 1, wh.InsertCallCount)
	assert.Equal(t, 1, wh.ListCallCount, "cache should be loaded once")
	assert.Equal(t, 1, wh.GetCallCount, "second call should hit the cache")
	assert.Equal(t, 1, resolver.Created())
}

func TestDimensionResolver_ResolveOrCreate_LoadsExistingValues(t *testing.T) {
	wh := mocks.NewWarehouse()
	existing := wh.Seed(entities.DimensionProject, "P1", nil)
	resolver := NewDimensionResolver(wh, nil)

	id, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionProject, "P1", nil)

	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.Zero(t, wh.GetCallCount)
	assert.Zero(t, wh.InsertCallCount)
	assert.Zero(t, resolver.Created())
	assert.Equal(t, 1, resolver.Cached(entities.DimensionProject))
}

func TestDimensionResolver_ResolveOrCreate_ChecksStorageAfterCacheLoad(t *testing.T) {
	wh := mocks.NewWarehouse()
	resolver := NewDimensionResolver(wh, nil)
	ctx := context.Background()

	_, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.NoError(t, err)

	// Written by another loader after our cache was populated.
	globex := wh.Seed(entities.DimensionClient, "Globex", nil)

	id, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Globex", nil)
	require.NoError(t, err)

	assert.Equal(t, globex, id)
	assert.Equal(t, 1, wh.InsertCallCount)
	assert.Equal(t, 2, wh.GetCallCount)
	assert.Equal(t, 2, wh.Count(entities.DimensionClient))
}

func TestDimensionResolver_ResolveOrCreate_EmptyKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "whitespace only", key: " \t "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := mocks.NewWarehouse()
			resolver := NewDimensionResolver(wh, nil)

			_, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionTask, tt.key, nil)

			require.ErrorIs(t, err, ErrEmptyNaturalKey)
			assert.Zero(t, wh.ListCallCount)
			assert.Zero(t, wh.GetCallCount)
			assert.Zero(t, wh.InsertCallCount)
		})
	}
}

func TestDimensionResolver_ResolveOrCreate_UnknownDimension(t *testing.T) {
	resolver := NewDimensionResolver(mocks.NewWarehouse(), nil)

	_, err := resolver.ResolveOrCreate(context.Background(), entities.Dimension("region"), "EMEA", nil)

	require.ErrorIs(t, err, ErrUnknownDimension)
}

func TestDimensionResolver_ResolveOrCreate_FirstWriteWinsAttributes(t *testing.T) {
	wh := mocks.NewWarehouse()
	ctx := context.Background()
	resolver := NewDimensionResolver(wh, nil)

	first, err := resolver.ResolveOrCreate(ctx, entities.DimensionEmployee, "Jo", entities.Attributes{entities.AttrRole: "Designer"})
	require.NoError(t, err)
	second, err := resolver.ResolveOrCreate(ctx, entities.DimensionEmployee, "Jo", entities.Attributes{entities.AttrRole: "Manager"})
	require.NoError(t, err)

	// A restarted loader doesn't overwrite either.
	restarted := NewDimensionResolver(wh, nil)
	third, err := restarted.ResolveOrCreate(ctx, entities.DimensionEmployee, "Jo", entities.Attributes{entities.AttrRole: "Lead"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	value, ok := wh.Value(entities.DimensionEmployee, "Jo")
	require.True(t, ok)
	assert.Equal(t, "Designer", value.Attributes[entities.AttrRole])
}

func TestDimensionResolver_ResolveOrCreate_AcrossRestart(t *testing.T) {
	wh := mocks.NewWarehouse()
	ctx := context.Background()

	before, err := NewDimensionResolver(wh, nil).ResolveOrCreate(ctx, entities.DimensionTask, "Design", nil)
	require.NoError(t, err)

	after, err := NewDimensionResolver(wh, nil).ResolveOrCreate(ctx, entities.DimensionTask, "Design", nil)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 1, wh.Count(entities.DimensionTask))
	assert.Equal(t, 1, wh.InsertCallCount)
}

func TestDimensionResolver_ResolveOrCreate_ConcurrentInsert(t *testing.T) {
	wh := mocks.NewWarehouse()
	// Another loader wins the race between our lookup and our insert.
	wh.BeforeInsert = func(dim entities.Dimension, naturalKey string) error {
		wh.Seed(dim, naturalKey, nil)
		return ports.ErrDuplicateNaturalKey
	}
	resolver := NewDimensionResolver(wh, nil)

	id, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionClient, "Acme", nil)

	require.NoError(t, err)
	winner, ok := wh.Value(entities.DimensionClient, "Acme")
	require.True(t, ok)
	assert.Equal(t, winner.SurrogateKey, id)
	assert.Equal(t, 2, wh.GetCallCount, "duplicate insert should be followed by a re-read")
	assert.Zero(t, resolver.Created())
	assert.Equal(t, 1, wh.Count(entities.DimensionClient))
}

func TestDimensionResolver_ResolveOrCreate_DuplicateButMissing(t *testing.T) {
	wh := mocks.NewWarehouse()
	wh.BeforeInsert = func(entities.Dimension, string) error {
		return ports.ErrDuplicateNaturalKey
	}
	resolver := NewDimensionResolver(wh, nil)

	_, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionClient, "Acme", nil)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "re-reading", perr.Op)
	assert.ErrorIs(t, err, ports.ErrDuplicateNaturalKey)
}

func TestDimensionResolver_ResolveOrCreate_PersistenceErrors(t *testing.T) {
	storageErr := errors.New("disk I/O error")

	tests := []struct {
		name   string
		setup  func(*mocks.Warehouse)
		wantOp string
	}{
		{
			name:   "list fails",
			setup:  func(m *mocks.Warehouse) { m.ListErr = storageErr },
			wantOp: "loading",
		},
		{
			name:   "lookup fails",
			setup:  func(m *mocks.Warehouse) { m.GetErr = storageErr },
			wantOp: "looking up",
		},
		{
			name:   "insert fails",
			setup:  func(m *mocks.Warehouse) { m.InsertErr = storageErr },
			wantOp: "inserting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := mocks.NewWarehouse()
			tt.setup(wh)
			resolver := NewDimensionResolver(wh, nil)

			_, err := resolver.ResolveOrCreate(context.Background(), entities.DimensionClient, "Acme", nil)

			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantOp, perr.Op)
			assert.ErrorIs(t, err, storageErr)
			assert.Zero(t, wh.Count(entities.DimensionClient))
		})
	}
}

func TestDimensionResolver_ResolveOrCreate_RecoversAfterFailedInsert(t *testing.T) {
	wh := mocks.NewWarehouse()
	wh.InsertErr = errors.New("connection reset")
	resolver := NewDimensionResolver(wh, nil)
	ctx := context.Background()

	_, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.Error(t, err)

	wh.InsertErr = nil
	id, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 1, wh.Count(entities.DimensionClient))
}

func TestDimensionResolver_Reload(t *testing.T) {
	wh := mocks.NewWarehouse()
	resolver := NewDimensionResolver(wh, nil)
	ctx := context.Background()

	_, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.NoError(t, err)
	require.Equal(t, 1, resolver.Cached(entities.DimensionClient))

	resolver.Reload()
	assert.Zero(t, resolver.Cached(entities.DimensionClient))

	_, err = resolver.ResolveOrCreate(ctx, entities.DimensionClient, "Acme", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, wh.ListCallCount)
	assert.Equal(t, 1, wh.InsertCallCount)
}

func TestDimensionResolver_Uniqueness(t *testing.T) {
	wh := mocks.NewWarehouse()
	resolver := NewDimensionResolver(wh, nil)
	ctx := context.Background()

	byKey := make(map[string]int64)
	byID := make(map[int64]string)
	for i := range 50 {
		key := fmt.Sprintf("client-%d", i%17)
		id, err := resolver.ResolveOrCreate(ctx, entities.DimensionClient, key, nil)
		require.NoError(t, err)

		if prev, ok := byKey[key]; ok {
			assert.Equal(t, prev, id, "natural key %s mapped to two surrogate keys", key)
		}
		if prev, ok := byID[id]; ok {
			assert.Equal(t, prev, key, "surrogate key %d shared by two natural keys", id)
		}
		byKey[key] = id
		byID[id] = key
	}

	assert.Len(t, byKey, 17)
	assert.Equal(t, 17, wh.Count(entities.DimensionClient))
	assert.Equal(t, 17, resolver.Created())
}
