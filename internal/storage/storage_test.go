// internal/storage/storage_test.go
package storage

import (
	"context"
	"path/filepath"
	"testing"

	"bookcatalog/internal/config"
	"bookcatalog/internal/storage/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEmbeddedDrivers(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite, config.DriverBolt} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.Config{
				StoreDriver: driver,
				SQLitePath:  filepath.Join(dir, "catalog.db"),
				BoltPath:    filepath.Join(dir, "catalog.bolt"),
			}
			s, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })

			ctx := context.Background()
			require.NoError(t, s.Ping(ctx))
			_, err = s.Insert(ctx, storetest.Input("Title", "Author", driver))
			assert.NoError(t, err)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}
