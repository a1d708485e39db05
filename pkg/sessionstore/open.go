package sessionstore

import (
	"context"
	"io"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the store selected by cfg. The returned closer releases its connection.
func Open(ctx context.Context, cfg Config) (Store, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		client, err := NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client, cfg.MaxAge), client, nil

	case BackendPostgres, BackendSQLite:
		db, err := OpenDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewSQLStore(ctx, db, cfg.Backend, cfg.MaxAge)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if _, err := store.DeleteExpired(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil

	default:
		return NewMemoryStore(cfg), nopCloser{}, nil
	}
}
