package a

import "context"

type Store interface {
	GetSurrogateKey(ctx context.Context, dim, key string) (int64, bool, error)
	InsertDimensionValue(ctx context.Context, dim, key string) (int64, error)
	AppendFactRows(ctx context.Context, rows []string) error
}

type Resolver interface {
	ResolveOrCreate(ctx context.Context, dim, key string) (int64, error)
}

func bad(ctx context.Context, keys []string, s Store) {
	for _, key := range keys {
		s.GetSurrogateKey(ctx, "client", key)      // want "GetSurrogateKey called inside loop - resolve through DimensionResolver"
		s.InsertDimensionValue(ctx, "client", key) // want "InsertDimensionValue called inside loop"
	}
	for i := 0; i < len(keys); i++ {
		s.AppendFactRows(ctx, keys[i:i+1]) // want "AppendFactRows called inside loop - collect rows and append once"
	}
}

func nested(ctx context.Context, batches [][]string, s Store) {
	for _, batch := range batches {
		for _, key := range batch {
			s.GetSurrogateKey(ctx, "task", key) // want "GetSurrogateKey called inside loop"
		}
	}
}

func good(ctx context.Context, keys []string, s Store, r Resolver) error {
	for _, key := range keys {
		if _, err := r.ResolveOrCreate(ctx, "client", key); err != nil {
			return err
		}
	}
	return s.AppendFactRows(ctx, keys)
}
