// internal/storage/bolt/store.go

// Package bolt stores catalog records in an embedded BoltDB file. Bolt
// allows one read-write transaction at a time, so the ISBN check and the
// write it guards always run together.
package bolt

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"bookcatalog/internal/catalog"

	bolt "github.com/boltdb/bolt"
)

var (
	booksBucket = []byte("books")
	isbnBucket  = []byte("isbn")
)

var _ catalog.Store = (*Store)(nil)

// record is the stored form of a book. Seq orders records created within
// the same microsecond.
type record struct {
	Seq  uint64       `json:"seq"`
	Book catalog.Book `json:"book"`
}

// Store is a BoltDB-backed catalog.Store.
type Store struct {
	db     *bolt.DB
	now    func() time.Time
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database file at path and ensures its buckets
// exist. A file locked by another process yields ErrStorageUnavailable.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "catalog.bolt"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, translate(err, "open bolt "+path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{booksBucket, isbnBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Insert(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	book, err := catalog.NewBook(in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		isbns := tx.Bucket(isbnBucket)
		if isbns.Get([]byte(book.ISBN)) != nil {
			return catalog.ErrDuplicateISBN
		}
		books := tx.Bucket(booksBucket)
		seq, err := books.NextSequence()
		if err != nil {
			return err
		}
		if err := put(books, record{Seq: seq, Book: book}); err != nil {
			return err
		}
		return isbns.Put([]byte(book.ISBN), []byte(book.ID.String()))
	})
	if err != nil {
		return nil, translate(err, "insert book")
	}
	return &book, nil
}

func (s *Store) Get(ctx context.Context, id string) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var rec record
	err = s.db.View(func(tx *bolt.Tx) error {
		rec, err = get(tx.Bucket(booksBucket), []byte(key.String()))
		return err
	})
	if err != nil {
		return nil, translate(err, "get book")
	}
	return &rec.Book, nil
}

func (s *Store) Update(ctx context.Context, id string, patch catalog.BookInput) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var updated catalog.Book
	err = s.db.Update(func(tx *bolt.Tx) error {
		books, isbns := tx.Bucket(booksBucket), tx.Bucket(isbnBucket)
		rec, err := get(books, []byte(key.String()))
		if err != nil {
			return err
		}
		updated, err = catalog.ApplyPatch(rec.Book, patch, s.now())
		if err != nil {
			return err
		}

		if updated.ISBN != rec.Book.ISBN {
			if isbns.Get([]byte(updated.ISBN)) != nil {
				return catalog.ErrDuplicateISBN
			}
			if err := isbns.Delete([]byte(rec.Book.ISBN)); err != nil {
				return err
			}
			if err := isbns.Put([]byte(updated.ISBN), []byte(key.String())); err != nil {
				return err
			}
		}
		rec.Book = updated
		return put(books, rec)
	})
	if err != nil {
		return nil, translate(err, "update book")
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := catalog.ParseID(id)
	if err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket(booksBucket)
		rec, err := get(books, []byte(key.String()))
		if err != nil {
			return err
		}
		if err := tx.Bucket(isbnBucket).Delete([]byte(rec.Book.ISBN)); err != nil {
			return err
		}
		return books.Delete([]byte(key.String()))
	})
	return translate(err, "delete book")
}

func (s *Store) Search(ctx context.Context, query string) ([]catalog.Book, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var matched []record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(booksBucket).ForEach(func(_, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode book: %w", err)
			}
			if catalog.Matches(rec.Book, query) {
				matched = append(matched, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, translate(err, "search books")
	}

	slices.SortFunc(matched, func(a, b record) int {
		if c := b.Book.CreatedAt.Compare(a.Book.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	books := make([]catalog.Book, 0, len(matched))
	for _, rec := range matched {
		books = append(books, rec.Book)
	}
	return books, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return translate(s.db.View(func(*bolt.Tx) error { return nil }), "ping bolt")
}

// Close releases the file lock.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if s.closed.Load() {
		return catalog.ErrStorageUnavailable
	}
	return ctx.Err()
}

func get(b *bolt.Bucket, key []byte) (record, error) {
	v := b.Get(key)
	if v == nil {
		return record{}, catalog.ErrNotFound
	}
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return record{}, fmt.Errorf("decode book %s: %w", key, err)
	}
	return rec, nil
}

func put(b *bolt.Bucket, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	return b.Put([]byte(rec.Book.ID.String()), data)
}

func translate(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrDuplicateISBN), errors.Is(err, catalog.ErrValidation):
		return err
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTimeout):
		return fmt.Errorf("%w: %s: %v", catalog.ErrStorageUnavailable, action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
