// internal/storage/storage.go

// Package storage opens the catalog.Store backend named by configuration.
package storage

import (
	"context"
	"fmt"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/config"
	"bookcatalog/internal/storage/bolt"
	"bookcatalog/internal/storage/memory"
	"bookcatalog/internal/storage/postgres"
	"bookcatalog/internal/storage/sqlite"
)

// Open returns the configured store. The caller owns it and must Close it.
func Open(ctx context.Context, cfg *config.Config) (catalog.Store, error) {
	var (
		store catalog.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = memory.New()
	case config.DriverPostgres:
		store, err = opened(postgres.Open(ctx, cfg.DatabaseURL))
	case config.DriverSQLite:
		store, err = opened(sqlite.Open(ctx, cfg.SQLitePath))
	case config.DriverBolt:
		store, err = opened(bolt.Open(cfg.BoltPath))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store, nil
}

// opened keeps a failed constructor's nil pointer out of the interface.
func opened[S catalog.Store](s S, err error) (catalog.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
