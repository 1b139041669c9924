// internal/catalog/implementation_test.go
package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/storage/memory"
	"bookcatalog/internal/storage/storetest"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) catalog.Service {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	return catalog.NewService(store, zap.NewNop())
}

func TestCreateFetchRemove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, storetest.Input("Introduction to Algorithms", "Thomas H. Cormen", "9780262033848"))
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, book.Status)

	got, err := svc.Fetch(ctx, book.ID.String())
	require.NoError(t, err)
	assert.Equal(t, book.ISBN, got.ISBN)

	require.NoError(t, svc.Remove(ctx, book.ID.String()))
	_, err = svc.Fetch(ctx, book.ID.String())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, catalog.KindNotFound, catalog.KindOf(err))
}

func TestCreateChecksRequiredFieldsFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	svc := catalog.NewService(store, zap.NewNop())

	// no store call is expected
	_, err := svc.Create(context.Background(), catalog.BookInput{})
	require.ErrorIs(t, err, catalog.ErrMissingFields)

	var verr *catalog.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["isbn"])
}

func TestCreateDuplicateISBN(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, storetest.Input("First", "Author", "dup"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, storetest.Input("Second", "Author", "dup"))
	require.ErrorIs(t, err, catalog.ErrDuplicateISBN)
	assert.Equal(t, catalog.KindConflict, catalog.KindOf(err))
}

func TestReplace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, storetest.Input("Title", "Author", "isbn-1"))
	require.NoError(t, err)

	status := string(catalog.StatusReserved)
	updated, err := svc.Replace(ctx, book.ID.String(), catalog.BookInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusReserved, updated.Status)
	assert.True(t, updated.UpdatedAt.After(book.UpdatedAt))

	_, err = svc.Replace(ctx, "not-a-uuid", catalog.BookInput{Status: &status})
	assert.ErrorIs(t, err, catalog.ErrInvalidID)
}

func TestListOrSearch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, storetest.Input("Principles of Economics", "N. Gregory Mankiw", "9781305585126"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, storetest.Input("Clean Code", "Robert C. Martin", "9780132350884"))
	require.NoError(t, err)

	all, err := svc.ListOrSearch(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := svc.ListOrSearch(ctx, "mankiw")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Principles of Economics", found[0].Title)

	none, err := svc.ListOrSearch(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in := storetest.Input("A", "Author", "a")
	in.AvailableCopies = catalog.IntNumber(3)
	_, err := svc.Create(ctx, in)
	require.NoError(t, err)

	in = storetest.Input("B", "Author", "b")
	status := string(catalog.StatusCheckedOut)
	in.Status = &status
	in.AvailableCopies = catalog.IntNumber(0)
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	in = storetest.Input("C", "Author", "c")
	status = string(catalog.StatusReserved)
	in.Status = &status
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &catalog.Stats{Total: 3, Available: 1, CheckedOut: 1, Reserved: 1, AvailableCopies: 4}, stats)
}

func TestStorageFailuresKeepTheirKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	svc := catalog.NewService(store, zap.NewNop())
	ctx := context.Background()

	unavailable := fmt.Errorf("%w: connection refused", catalog.ErrStorageUnavailable)
	store.EXPECT().Search(gomock.Any(), "").Return(nil, unavailable).Times(2)
	store.EXPECT().Get(gomock.Any(), "id").Return(nil, errors.New("disk on fire"))
	store.EXPECT().Ping(gomock.Any()).Return(unavailable)

	_, err := svc.ListOrSearch(ctx, "")
	assert.Equal(t, catalog.KindUnavailable, catalog.KindOf(err))

	_, err = svc.Stats(ctx)
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)

	_, err = svc.Fetch(ctx, "id")
	require.Error(t, err)
	assert.Equal(t, catalog.KindInternal, catalog.KindOf(err))
	assert.Contains(t, err.Error(), "disk on fire")

	assert.ErrorIs(t, svc.Health(ctx), catalog.ErrStorageUnavailable)
}

func TestCreatePassesInputToStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	svc := catalog.NewService(store, zap.NewNop())

	in := storetest.Input("Title", "Author", "isbn")
	want := &catalog.Book{Title: "Title", Author: "Author", ISBN: "isbn"}
	store.EXPECT().Insert(gomock.Any(), in).Return(want, nil)

	got, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Same(t, want, got)
}
