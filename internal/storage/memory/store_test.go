// internal/storage/memory/store_test.go
package memory

import (
	"context"
	"testing"
	"time"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/storage/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(testing.TB) catalog.Store { return New() })
}

func TestUpdateWithFrozenClock(t *testing.T) {
	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	created, err := s.Insert(ctx, storetest.Input("Title", "Author", "frozen"))
	require.NoError(t, err)
	assert.Equal(t, frozen, created.CreatedAt)

	first, err := s.Update(ctx, created.ID.String(), catalog.BookInput{})
	require.NoError(t, err)
	second, err := s.Update(ctx, created.ID.String(), catalog.BookInput{})
	require.NoError(t, err)

	assert.Equal(t, frozen.Add(time.Microsecond), first.UpdatedAt)
	assert.Equal(t, frozen.Add(2*time.Microsecond), second.UpdatedAt)
	assert.Equal(t, frozen, second.CreatedAt)
}

func TestSearchTieBreaksOnInsertionOrder(t *testing.T) {
	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	first, err := s.Insert(ctx, storetest.Input("First", "Author", "1"))
	require.NoError(t, err)
	second, err := s.Insert(ctx, storetest.Input("Second", "Author", "2"))
	require.NoError(t, err)

	books, err := s.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, second.ID, books[0].ID)
	assert.Equal(t, first.ID, books[1].ID)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	created, err := s.Insert(ctx, storetest.Input("Title", "Author", "copy"))
	require.NoError(t, err)

	created.Title = "mutated by caller"
	got, err := s.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Title", got.Title)
}
