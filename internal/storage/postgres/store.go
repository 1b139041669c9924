// internal/storage/postgres/store.go

// Package postgres stores catalog records in PostgreSQL. ISBN uniqueness is
// enforced by a UNIQUE constraint, so concurrent writers are serialised by
// the database itself.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bookcatalog/internal/catalog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package state.
var migrateMu sync.Mutex

const uniqueViolation = "23505"

const bookColumns = `id, title, author, isbn, category, publish_year, available_copies, location, status, created_at, updated_at`

var _ catalog.Store = (*Store)(nil)

// Store is a PostgreSQL-backed catalog.Store.
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	now     func() time.Time
	closed  atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(s *Store) { s.breaker = gobreaker.NewCircuitBreaker(settings) }
}

// Open connects to dsn, applies pending migrations and returns a ready store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", catalog.ErrStorageUnavailable, err)
	}
	if err := Migrate(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, opts...), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// New wraps an already connected database.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		tracer: otel.Tracer("bookcatalog/postgres"),
		now:    time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "postgres",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !unreachable(err)
			},
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Insert(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	book, err := catalog.NewBook(in, s.now())
	if err != nil {
		return nil, err
	}

	err = s.do(ctx, "insert", func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO books (`+bookColumns+`)
			VALUES (:id, :title, :author, :isbn, :category, :publish_year, :available_copies, :location, :status, :created_at, :updated_at)
		`, book)
		return err
	}, attribute.String("book.isbn", book.ISBN))
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (s *Store) Get(ctx context.Context, id string) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}

	var book catalog.Book
	err = s.do(ctx, "get", func(ctx context.Context) error {
		err := s.db.GetContext(ctx, &book, `SELECT `+bookColumns+` FROM books WHERE id = $1`, key)
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ErrNotFound
		}
		return err
	}, attribute.String("book.id", id))
	if err != nil {
		return nil, err
	}
	normalize(&book)
	return &book, nil
}

func (s *Store) Update(ctx context.Context, id string, patch catalog.BookInput) (*catalog.Book, error) {
	key, err := catalog.ParseID(id)
	if err != nil {
		return nil, err
	}

	var updated catalog.Book
	err = s.do(ctx, "update", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		var current catalog.Book
		err = tx.GetContext(ctx, &current, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, key)
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock book: %w", err)
		}
		normalize(&current)

		updated, err = catalog.ApplyPatch(current, patch, s.now())
		if err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `
			UPDATE books
			SET title = :title, author = :author, isbn = :isbn, category = :category,
			    publish_year = :publish_year, available_copies = :available_copies,
			    location = :location, status = :status, updated_at = :updated_at
			WHERE id = :id
		`, updated)
		if err != nil {
			return err
		}
		return tx.Commit()
	}, attribute.String("book.id", id))
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := catalog.ParseID(id)
	if err != nil {
		return err
	}

	return s.do(ctx, "delete", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return catalog.ErrNotFound
		}
		return nil
	}, attribute.String("book.id", id))
}

func (s *Store) Search(ctx context.Context, query string) ([]catalog.Book, error) {
	rows := []catalog.Book{}
	err := s.do(ctx, "search", func(ctx context.Context) error {
		// lower() folds ASCII only under the C collation; matching stays in Go
		return s.db.SelectContext(ctx, &rows, `
			SELECT `+bookColumns+`
			FROM books
			ORDER BY created_at DESC, seq DESC
		`)
	}, attribute.String("search.query", query))
	if err != nil {
		return nil, err
	}
	books := rows[:0]
	for _, b := range rows {
		normalize(&b)
		if catalog.Matches(b, query) {
			books = append(books, b)
		}
	}
	return books, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// do runs fn behind the circuit breaker inside a span and translates driver
// failures into catalog errors.
func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if s.closed.Load() {
		return catalog.ErrStorageUnavailable
	}

	ctx, span := s.tracer.Start(ctx, "postgres."+op, trace.WithAttributes(attrs...))
	defer span.End()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests), unreachable(err):
		err = fmt.Errorf("%w: %v", catalog.ErrStorageUnavailable, err)
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return catalog.ErrDuplicateISBN
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrValidation):
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// unreachable reports whether err means the database could not be used at
// all, as opposed to rejecting a statement.
func unreachable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
	}
	return false
}

func normalize(b *catalog.Book) {
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
}
