// internal/storage/sqlite/store_test.go
package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/storage/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t testing.TB, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(tb testing.TB) catalog.Store {
		return openTestStore(tb, ":memory:")
	})
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	ctx := context.Background()

	s := openTestStore(t, path)
	created, err := s.Insert(ctx, storetest.Input("Persistent", "Author", "persist-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	got, err := reopened.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = reopened.Insert(ctx, storetest.Input("Duplicate", "Author", "persist-1"))
	assert.ErrorIs(t, err, catalog.ErrDuplicateISBN)
}
