// internal/storage/memory/store.go

// Package memory provides an in-process catalog store used for tests and
// ephemeral deployments.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"bookcatalog/internal/catalog"

	"github.com/google/uuid"
)

var _ catalog.Store = (*Store)(nil)

type entry struct {
	book catalog.Book
	seq  uint64
}

// Store keeps records in maps guarded by a single RWMutex. Writers hold the
// lock across the uniqueness check and the write.
type Store struct {
	mu     sync.RWMutex
	books  map[uuid.UUID]*entry
	isbns  map[string]uuid.UUID
	seq    uint64
	closed bool
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		books: make(map[uuid.UUID]*entry),
		isbns: make(map[string]uuid.UUID),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Insert(_ context.Context, in catalog.BookInput) (*catalog.Book, error) {
	book, err := catalog.NewBook(in, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, catalog.ErrStorageUnavailable
	}
	if _, taken := s.isbns[book.ISBN]; taken {
		return nil, catalog.ErrDuplicateISBN
	}
	s.seq++
	s.books[book.ID] = &entry{book: book, seq: s.seq}
	s.isbns[book.ISBN] = book.ID
	return &book, nil
}

func (s *Store) Get(_ context.Context, id string) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, catalog.ErrStorageUnavailable
	}
	e, ok := s.books[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	book := e.book
	return &book, nil
}

func (s *Store) Update(_ context.Context, id string, patch catalog.BookInput) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, catalog.ErrStorageUnavailable
	}
	e, ok := s.books[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	updated, err := catalog.ApplyPatch(e.book, patch, s.now())
	if err != nil {
		return nil, err
	}
	if owner, taken := s.isbns[updated.ISBN]; taken && owner != key {
		return nil, catalog.ErrDuplicateISBN
	}
	delete(s.isbns, e.book.ISBN)
	s.isbns[updated.ISBN] = key
	e.book = updated
	return &updated, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	key, err := catalog.ParseID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return catalog.ErrStorageUnavailable
	}
	e, ok := s.books[key]
	if !ok {
		return catalog.ErrNotFound
	}
	delete(s.isbns, e.book.ISBN)
	delete(s.books, key)
	return nil
}

func (s *Store) Search(_ context.Context, query string) ([]catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, catalog.ErrStorageUnavailable
	}

	matches := make([]*entry, 0, len(s.books))
	for _, e := range s.books {
		if catalog.Matches(e.book, query) {
			matches = append(matches, e)
		}
	}
	slices.SortFunc(matches, func(a, b *entry) int {
		if c := b.book.CreatedAt.Compare(a.book.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	books := make([]catalog.Book, 0, len(matches))
	for _, e := range matches {
		books = append(books, e.book)
	}
	return books, nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return catalog.ErrStorageUnavailable
	}
	return nil
}

// Close discards the records. Later calls fail with ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.books = nil
	s.isbns = nil
	return nil
}
