// internal/storage/sqlite/store.go

// Package sqlite stores catalog records in a single SQLite file using the
// pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"bookcatalog/internal/catalog"

	"github.com/google/uuid"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	isbn TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL,
	publish_year INTEGER NOT NULL,
	available_copies INTEGER NOT NULL CHECK (available_copies >= 0),
	location TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

const bookColumns = `id, title, author, isbn, category, publish_year, available_copies, location, status, created_at, updated_at`

var _ catalog.Store = (*Store)(nil)

// Store is a SQLite-backed catalog.Store. It uses a single connection, which
// serialises writers the same way SQLite itself does.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database at path. ":memory:" keeps everything
// in memory.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "catalog.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: open sqlite %s: %v", catalog.ErrStorageUnavailable, path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create books table: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (catalog.Book, error) {
	var (
		b                catalog.Book
		id, status       string
		created, updated int64
	)
	err := row.Scan(&id, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.PublishYear,
		&b.AvailableCopies, &b.Location, &status, &created, &updated)
	if err != nil {
		return catalog.Book{}, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return catalog.Book{}, fmt.Errorf("decode id %q: %w", id, err)
	}
	b.Status = catalog.Status(status)
	b.CreatedAt = time.UnixMicro(created).UTC()
	b.UpdatedAt = time.UnixMicro(updated).UTC()
	return b, nil
}

func (s *Store) Insert(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	book, err := catalog.NewBook(in, s.now())
	if err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, catalog.ErrStorageUnavailable
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO books (`+bookColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		book.ID.String(), book.Title, book.Author, book.ISBN, book.Category, book.PublishYear,
		book.AvailableCopies, book.Location, string(book.Status),
		book.CreatedAt.UnixMicro(), book.UpdatedAt.UnixMicro())
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
	if s.closed.Load() {
		return nil, catalog.ErrStorageUnavailable
	}

	book, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, "get book")
	}
	return &book, nil
}

func (s *Store) Update(ctx context.Context, id string, patch catalog.BookInput) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, catalog.ErrStorageUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err, "begin transaction")
	}
	defer tx.Rollback()

	current, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, "load book")
	}

	updated, err := catalog.ApplyPatch(current, patch, s.now())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE books
		SET title = ?, author = ?, isbn = ?, category = ?, publish_year = ?,
		    available_copies = ?, location = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		updated.Title, updated.Author, updated.ISBN, updated.Category, updated.PublishYear,
		updated.AvailableCopies, updated.Location, string(updated.Status),
		updated.UpdatedAt.UnixMicro(), key.String())
	if err != nil {
		return nil, translate(err, "update book")
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err, "commit update")
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := catalog.ParseID(id)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return catalog.ErrStorageUnavailable
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, key.String())
	if err != nil {
		return translate(err, "delete book")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, "rows affected")
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Search filters in Go so that case folding matches the other backends;
// SQLite's lower() only folds ASCII.
func (s *Store) Search(ctx context.Context, query string) ([]catalog.Book, error) {
	if s.closed.Load() {
		return nil, catalog.ErrStorageUnavailable
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, translate(err, "select books")
	}
	defer func() { _ = rows.Close() }()

	books := []catalog.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, translate(err, "scan book")
		}
		if catalog.Matches(b, query) {
			books = append(books, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate books")
	}
	return books, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return catalog.ErrStorageUnavailable
	}
	return translate(s.db.PingContext(ctx), "ping sqlite")
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		// extended codes carry the primary code in the low byte
		primary := se.Code() & 0xff
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(primary == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")) {
			return catalog.ErrDuplicateISBN
		}
		switch primary {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %s: %v", catalog.ErrStorageUnavailable, action, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %s: %v", catalog.ErrStorageUnavailable, action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
