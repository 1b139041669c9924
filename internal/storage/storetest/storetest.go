// internal/storage/storetest/storetest.go

// Package storetest holds the behaviour every catalog.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"bookcatalog/internal/catalog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Factory returns an empty, open store. It may register cleanup on t.
type Factory func(t testing.TB) catalog.Store

// Input builds a complete, valid BookInput.
func Input(title, author, isbn string) catalog.BookInput {
	category := "Computer Science"
	return catalog.BookInput{
		Title:       &title,
		Author:      &author,
		ISBN:        &isbn,
		Category:    &category,
		PublishYear: catalog.IntNumber(2009),
	}
}

func str(s string) *string { return &s }

// Run exercises newStore against the full store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("Defaults", func(t *testing.T) { testDefaults(t, newStore(t)) })
	t.Run("SchemaEnforcement", func(t *testing.T) { testSchemaEnforcement(t, newStore(t)) })
	t.Run("YearZero", func(t *testing.T) { testYearZero(t, newStore(t)) })
	t.Run("InsertUniqueness", func(t *testing.T) { testInsertUniqueness(t, newStore(t)) })
	t.Run("UpdateUniqueness", func(t *testing.T) { testUpdateUniqueness(t, newStore(t)) })
	t.Run("UpdateMerge", func(t *testing.T) { testUpdateMerge(t, newStore(t)) })
	t.Run("UpdateMonotonic", func(t *testing.T) { testUpdateMonotonic(t, newStore(t)) })
	t.Run("DeletionFinality", func(t *testing.T) { testDeletionFinality(t, newStore(t)) })
	t.Run("InvalidID", func(t *testing.T) { testInvalidID(t, newStore(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newStore(t)) })
	t.Run("SearchFoldsCase", func(t *testing.T) { testSearchFoldsCase(t, newStore(t)) })
	t.Run("Scenario", func(t *testing.T) { testScenario(t, newStore(t)) })
	t.Run("ConcurrentInsert", func(t *testing.T) { testConcurrentInsert(t, newStore(t)) })
	t.Run("ConcurrentUpdate", func(t *testing.T) { testConcurrentUpdate(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
	t.Run("UniquenessProperty", func(t *testing.T) { testUniquenessProperty(t, newStore) })
}

func count(t testing.TB, s catalog.Store) int {
	t.Helper()
	books, err := s.Search(context.Background(), "")
	require.NoError(t, err)
	return len(books)
}

func testRoundTrip(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	in := Input("Introduction to Algorithms", "Thomas H. Cormen", "9780262033848")
	in.AvailableCopies = catalog.IntNumber(4)
	in.Location = str("Engineering Library")
	in.Status = str("Reserved")

	created, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := s.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Introduction to Algorithms", got.Title)
	assert.Equal(t, "Thomas H. Cormen", got.Author)
	assert.Equal(t, "9780262033848", got.ISBN)
	assert.Equal(t, "Computer Science", got.Category)
	assert.Equal(t, 2009, got.PublishYear)
	assert.Equal(t, 4, got.AvailableCopies)
	assert.Equal(t, "Engineering Library", got.Location)
	assert.Equal(t, catalog.StatusReserved, got.Status)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
}

func testDefaults(t *testing.T, s catalog.Store) {
	in := Input("  Padded Title  ", "Author", " 123 ")
	created, err := s.Insert(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Padded Title", created.Title)
	assert.Equal(t, "123", created.ISBN)
	assert.Equal(t, catalog.DefaultAvailableCopies, created.AvailableCopies)
	assert.Equal(t, catalog.DefaultLocation, created.Location)
	assert.Equal(t, catalog.DefaultStatus, created.Status)
}

func testSchemaEnforcement(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, Input("Seed", "Author", "seed"))
	require.NoError(t, err)

	cases := map[string]struct {
		mutate func(*catalog.BookInput)
		field  string
	}{
		"missing title":     {func(in *catalog.BookInput) { in.Title = nil }, "title"},
		"blank author":      {func(in *catalog.BookInput) { in.Author = str("   ") }, "author"},
		"missing category":  {func(in *catalog.BookInput) { in.Category = nil }, "category"},
		"unknown status":    {func(in *catalog.BookInput) { in.Status = str("Lost") }, "status"},
		"negative copies":   {func(in *catalog.BookInput) { in.AvailableCopies = catalog.IntNumber(-1) }, "availableCopies"},
		"non integer year":  {func(in *catalog.BookInput) { y := catalog.Number("soon"); in.PublishYear = &y }, "publishYear"},
		"fractional copies": {func(in *catalog.BookInput) { c := catalog.Number("1.5"); in.AvailableCopies = &c }, "availableCopies"},
		"missing year":      {func(in *catalog.BookInput) { in.PublishYear = nil }, "publishYear"},
		"padded status":     {func(in *catalog.BookInput) { in.Status = str(" Available ") }, "status"},
		"year out of range": {func(in *catalog.BookInput) { y := catalog.Number("3000000000"); in.PublishYear = &y }, "publishYear"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := Input("Title", "Author", "isbn-"+name)
			tc.mutate(&in)
			_, err := s.Insert(ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, catalog.ErrValidation)
			var verr *catalog.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
			assert.Equal(t, 1, count(t, s))
		})
	}
}

// testYearZero stores publishYear 0 on insert and on update; only the
// service-level required check treats zero as missing.
func testYearZero(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	in := Input("Undated", "Anonymous", "year-zero")
	in.PublishYear = catalog.IntNumber(0)
	created, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0, created.PublishYear)

	dated, err := s.Insert(ctx, Input("Dated", "Anonymous", "year-dated"))
	require.NoError(t, err)
	updated, err := s.Update(ctx, dated.ID.String(), catalog.BookInput{PublishYear: catalog.IntNumber(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.PublishYear)

	got, err := s.Get(ctx, dated.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, got.PublishYear)
}

func testInsertUniqueness(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, Input("First", "Author", "111"))
	require.NoError(t, err)

	_, err = s.Insert(ctx, Input("Second", "Other", "111"))
	assert.ErrorIs(t, err, catalog.ErrDuplicateISBN)
	assert.Equal(t, 1, count(t, s))
}

func testUpdateUniqueness(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	a, err := s.Insert(ctx, Input("A", "Author", "111"))
	require.NoError(t, err)
	b, err := s.Insert(ctx, Input("B", "Author", "222"))
	require.NoError(t, err)

	_, err = s.Update(ctx, b.ID.String(), catalog.BookInput{ISBN: str("111"), Title: str("B renamed")})
	assert.ErrorIs(t, err, catalog.ErrDuplicateISBN)

	unchanged, err := s.Get(ctx, b.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "222", unchanged.ISBN)
	assert.Equal(t, "B", unchanged.Title)

	// keeping its own isbn is not a collision
	same, err := s.Update(ctx, a.ID.String(), catalog.InputFrom(*a))
	require.NoError(t, err)
	assert.Equal(t, "111", same.ISBN)

	// the freed isbn becomes available
	moved, err := s.Update(ctx, b.ID.String(), catalog.BookInput{ISBN: str("333")})
	require.NoError(t, err)
	assert.Equal(t, "333", moved.ISBN)
	_, err = s.Insert(ctx, Input("C", "Author", "222"))
	require.NoError(t, err)
}

func testUpdateMerge(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	in := Input("Principles of Microeconomics", "N. Gregory Mankiw", "9781305971493")
	in.Location = str("Business Library")
	created, err := s.Insert(ctx, in)
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID.String(), catalog.BookInput{
		Status:          str(string(catalog.StatusCheckedOut)),
		AvailableCopies: catalog.IntNumber(0),
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCheckedOut, updated.Status)
	assert.Equal(t, 0, updated.AvailableCopies)
	assert.Equal(t, "Principles of Microeconomics", updated.Title)
	assert.Equal(t, "Business Library", updated.Location)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	_, err = s.Update(ctx, created.ID.String(), catalog.BookInput{Status: str("Lost")})
	assert.ErrorIs(t, err, catalog.ErrValidation)
	_, err = s.Update(ctx, created.ID.String(), catalog.BookInput{Title: str("")})
	assert.ErrorIs(t, err, catalog.ErrValidation)

	got, err := s.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCheckedOut, got.Status)
	assert.Equal(t, "Principles of Microeconomics", got.Title)
}

func testUpdateMonotonic(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	created, err := s.Insert(ctx, Input("Title", "Author", "mono"))
	require.NoError(t, err)

	prev := created.UpdatedAt
	for i := 0; i < 5; i++ {
		updated, err := s.Update(ctx, created.ID.String(), catalog.BookInput{AvailableCopies: catalog.IntNumber(i)})
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(prev), "updatedAt must strictly increase")
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
		prev = updated.UpdatedAt
	}
}

func testDeletionFinality(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	created, err := s.Insert(ctx, Input("Title", "Author", "gone"))
	require.NoError(t, err)
	id := created.ID.String()

	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = s.Update(ctx, id, catalog.BookInput{Title: str("again")})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), catalog.ErrNotFound)
	assert.Equal(t, 0, count(t, s))

	// the isbn is released with the record
	again, err := s.Insert(ctx, Input("Title", "Author", "gone"))
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, again.ID)
}

func testInvalidID(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	_, err := s.Get(ctx, "not-an-id")
	assert.ErrorIs(t, err, catalog.ErrInvalidID)
	_, err = s.Update(ctx, "42", catalog.BookInput{})
	assert.ErrorIs(t, err, catalog.ErrInvalidID)
	assert.ErrorIs(t, s.Delete(ctx, ""), catalog.ErrInvalidID)

	_, err = s.Get(ctx, "5f0c3b7e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func testSearch(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	algorithms, err := s.Insert(ctx, Input("Introduction to Algorithms", "Thomas H. Cormen", "9780262033848"))
	require.NoError(t, err)
	history, err := s.Insert(ctx, Input("The History of the Ancient World", "Susan Wise Bauer", "9780393059748"))
	require.NoError(t, err)
	econ, err := s.Insert(ctx, Input("Principles of Microeconomics", "N. Gregory Mankiw", "9781305971493"))
	require.NoError(t, err)

	got, err := s.Search(ctx, "mankiw")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, econ.ID, got[0].ID)

	got, err = s.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, econ.ID, got[0].ID)
	assert.Equal(t, history.ID, got[1].ID)
	assert.Equal(t, algorithms.ID, got[2].ID)

	got, err = s.Search(ctx, "zzz-no-match")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Search(ctx, "97803")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, history.ID, got[0].ID)

	got, err = s.Search(ctx, "THE")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, history.ID, got[0].ID)

	// pattern metacharacters are matched literally
	got, err = s.Search(ctx, ".*")
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.Search(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSearchFoldsCase(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	created, err := s.Insert(ctx, Input("Élan Vital", "Henri Bergson", "9780000000001"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, Input("Straße der Sterne", "Ödön Horváth", "9780000000002"))
	require.NoError(t, err)

	for _, q := range []string{"élan", "ÉLAN", "Élan"} {
		got, err := s.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1, q)
		assert.Equal(t, created.ID, got[0].ID)
	}

	got, err := s.Search(ctx, "ödön")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testScenario(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	a, err := s.Insert(ctx, Input("Algorithms", "Sedgewick", "111"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, Input("History", "Herodotus", "222"))
	require.NoError(t, err)

	got, err := s.Search(ctx, "alg")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	_, err = s.Update(ctx, a.ID.String(), catalog.BookInput{Status: str("Checked Out")})
	require.NoError(t, err)
	fetched, err := s.Get(ctx, a.ID.String())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCheckedOut, fetched.Status)
	assert.True(t, fetched.UpdatedAt.After(a.UpdatedAt))

	_, err = s.Insert(ctx, Input("Copy", "Someone", "111"))
	assert.ErrorIs(t, err, catalog.ErrDuplicateISBN)
	assert.Equal(t, 2, count(t, s))
}

func testConcurrentInsert(t *testing.T, s catalog.Store) {
	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Insert(context.Background(), Input(fmt.Sprintf("Copy %d", i), "Author", "race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case !errors.Is(err, catalog.ErrDuplicateISBN):
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes, "exactly one concurrent insert may win")
	assert.Equal(t, 1, count(t, s))
}

// testConcurrentUpdate moves distinct records onto one isbn at once.
func testConcurrentUpdate(t *testing.T, s catalog.Store) {
	const writers = 8
	ctx := context.Background()
	ids := make([]string, writers)
	for i := range ids {
		created, err := s.Insert(ctx, Input(fmt.Sprintf("Edition %d", i), "Author", fmt.Sprintf("edition-%d", i)))
		require.NoError(t, err)
		ids[i] = created.ID.String()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Update(ctx, id, catalog.BookInput{ISBN: str("target")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case !errors.Is(err, catalog.ErrDuplicateISBN):
				others = append(others, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes, "exactly one concurrent update may take the isbn")

	books, err := s.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, books, writers)
	held := 0
	for _, b := range books {
		if b.ISBN == "target" {
			held++
		}
	}
	assert.Equal(t, 1, held)
}

func testClosed(t *testing.T, s catalog.Store) {
	ctx := context.Background()
	created, err := s.Insert(ctx, Input("Title", "Author", "closed"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), catalog.ErrStorageUnavailable)
	_, err = s.Search(ctx, "")
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)
	_, err = s.Get(ctx, created.ID.String())
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)
	_, err = s.Insert(ctx, Input("Title", "Author", "after-close"))
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)
	_, err = s.Update(ctx, created.ID.String(), catalog.BookInput{Title: str("x")})
	assert.ErrorIs(t, err, catalog.ErrStorageUnavailable)
	assert.ErrorIs(t, s.Delete(ctx, created.ID.String()), catalog.ErrStorageUnavailable)
}

// testUniquenessProperty drives random insert/update/delete sequences over a
// small isbn pool and checks the store against a model after every step.
func testUniquenessProperty(t *testing.T, newStore Factory) {
	pool := []string{"111", "222", "333", "444"}
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s := newStore(t)
		defer s.Close()
		model := map[string]string{} // id -> isbn

		owner := func(isbn string) string {
			for id, held := range model {
				if held == isbn {
					return id
				}
			}
			return ""
		}
		ids := func() []string {
			out := make([]string, 0, len(model))
			for id := range model {
				out = append(out, id)
			}
			return out
		}

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			isbn := rapid.SampledFrom(pool).Draw(rt, "isbn")
			op := rapid.IntRange(0, 2).Draw(rt, "op")
			if len(model) == 0 {
				op = 0
			}
			switch op {
			case 0:
				created, err := s.Insert(ctx, Input("Title", "Author", isbn))
				if owner(isbn) != "" {
					require.ErrorIs(rt, err, catalog.ErrDuplicateISBN)
					break
				}
				require.NoError(rt, err)
				model[created.ID.String()] = isbn
			case 1:
				live := ids()
				id := rapid.SampledFrom(sortedCopy(live)).Draw(rt, "update")
				_, err := s.Update(ctx, id, catalog.BookInput{ISBN: &isbn})
				if o := owner(isbn); o != "" && o != id {
					require.ErrorIs(rt, err, catalog.ErrDuplicateISBN)
					break
				}
				require.NoError(rt, err)
				model[id] = isbn
			case 2:
				id := rapid.SampledFrom(sortedCopy(ids())).Draw(rt, "delete")
				require.NoError(rt, s.Delete(ctx, id))
				delete(model, id)
			}

			books, err := s.Search(ctx, "")
			require.NoError(rt, err)
			require.Len(rt, books, len(model))
			seen := map[string]bool{}
			for _, b := range books {
				require.False(rt, seen[b.ISBN], "isbn %s held twice", b.ISBN)
				seen[b.ISBN] = true
				require.Equal(rt, model[b.ID.String()], b.ISBN)
			}
		}
	})
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
