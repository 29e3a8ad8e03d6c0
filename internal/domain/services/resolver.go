package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ersonp/dimload/internal/domain/entities"
	"github.com/ersonp/dimload/internal/domain/ports"
)

// DimensionResolver maps natural keys to surrogate keys, creating missing values.
// It caches every dimension it touches and is not safe for concurrent use.
type DimensionResolver struct {
	store   ports.DimensionStore
	logger  *slog.Logger
	caches  map[entities.Dimension]map[string]int64
	created int
}

// NewDimensionResolver creates a resolver with empty caches.
func NewDimensionResolver(store ports.DimensionStore, logger *slog.Logger) *DimensionResolver {
	return &DimensionResolver{
		store:  store,
		logger: orDiscard(logger),
		caches: make(map[entities.Dimension]map[string]int64),
	}
}

// ResolveOrCreate returns the surrogate key of naturalKey in dim, inserting it when
// it doesn't exist yet. attrs are stored only when the value is created.
func (r *DimensionResolver) ResolveOrCreate(ctx context.Context, dim entities.Dimension, naturalKey string, attrs entities.Attributes) (int64, error) {
	if !dim.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
	key := entities.NormalizeNaturalKey(naturalKey)
	if key == "" {
		return 0, ErrEmptyNaturalKey
	}

	cache, err := r.cache(ctx, dim)
	if err != nil {
		return 0, err
	}
	if id, ok := cache[key]; ok {
		return id, nil
	}

	id, err := r.fetchOrInsert(ctx, dim, key, attrs)
	if err != nil {
		return 0, err
	}
	cache[key] = id
	return id, nil
}

// Reload drops all caches; the next lookup per dimension reloads it from storage.
func (r *DimensionResolver) Reload() {
	r.caches = make(map[entities.Dimension]map[string]int64)
}

// Created returns how many dimension values this resolver has inserted.
func (r *DimensionResolver) Created() int {
	return r.created
}

// Cached returns how many values of dim are currently cached.
func (r *DimensionResolver) Cached(dim entities.Dimension) int {
	return len(r.caches[dim])
}

// cache returns the cache for dim, loading it from storage on first use.
func (r *DimensionResolver) cache(ctx context.Context, dim entities.Dimension) (map[string]int64, error) {
	if c, ok := r.caches[dim]; ok {
		return c, nil
	}

	values, err := r.store.ListDimensionValues(ctx, dim)
	if err != nil {
		return nil, &PersistenceError{Op: "loading", Dimension: dim, Err: err}
	}

	c := make(map[string]int64, len(values))
	for i := range values {
		c[values[i].NaturalKey] = values[i].SurrogateKey
	}
	r.caches[dim] = c
	r.logger.Debug("loaded dimension cache", "dimension", dim, "values", len(c))
	return c, nil
}

// fetchOrInsert checks storage for a value that may have been written since the
// cache was loaded, and inserts it if it is still missing.
func (r *DimensionResolver) fetchOrInsert(ctx context.Context, dim entities.Dimension, key string, attrs entities.Attributes) (int64, error) {
	id, found, err := r.store.GetSurrogateKey(ctx, dim, key)
	if err != nil {
		return 0, &PersistenceError{Op: "looking up", Dimension: dim, NaturalKey: key, Err: err}
	}
	if found {
		return id, nil
	}

	id, err = r.store.InsertDimensionValue(ctx, dim, key, attrs)
	if err == nil {
		r.created++
		r.logger.Debug("created dimension value", "dimension", dim, "natural_key", key, "surrogate_key", id)
		return id, nil
	}
	if !errors.Is(err, ports.ErrDuplicateNaturalKey) {
		return 0, &PersistenceError{Op: "inserting", Dimension: dim, NaturalKey: key, Err: err}
	}

	// Another writer inserted the key between our lookup and insert.
	id, found, err = r.store.GetSurrogateKey(ctx, dim, key)
	if err != nil {
		return 0, &PersistenceError{Op: "re-reading", Dimension: dim, NaturalKey: key, Err: err}
	}
	if !found {
		return 0, &PersistenceError{
			Op:         "re-reading",
			Dimension:  dim,
			NaturalKey: key,
			Err:        fmt.Errorf("%w but lookup found nothing", ports.ErrDuplicateNaturalKey),
		}
	}
	r.logger.Debug("dimension value inserted concurrently", "dimension", dim, "natural_key", key, "surrogate_key", id)
	return id, nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
