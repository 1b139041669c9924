// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// service implements the Service interface.
type service struct {
	store      Store
	logger     *zap.Logger
	tracer     trace.Tracer
	operations metric.Int64Counter
}

// NewService creates a new catalog service instance on top of store.
func NewService(store Store, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	operations, err := otel.Meter("bookcatalog/catalog").Int64Counter("catalog.operations",
		metric.WithDescription("Catalog service operations by outcome"),
	)
	if err != nil {
		logger.Warn("operation counter unavailable", zap.Error(err))
	}
	return &service{
		store:      store,
		logger:     logger.Named("catalog"),
		tracer:     otel.Tracer("bookcatalog/catalog"),
		operations: operations,
	}
}

// ListOrSearch returns every book, or those matching query.
func (s *service) ListOrSearch(ctx context.Context, query string) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_or_search",
		trace.WithAttributes(attribute.String("search.query", query)),
	)
	defer span.End()

	books, err := s.store.Search(ctx, query)
	s.observe(ctx, span, "list_or_search", err)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	span.SetAttributes(attribute.Int("search.results", len(books)))
	return books, nil
}

// Fetch retrieves a book by its ID.
func (s *service) Fetch(ctx context.Context, id string) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.fetch",
		trace.WithAttributes(attribute.String("book.id", id)),
	)
	defer span.End()

	book, err := s.store.Get(ctx, id)
	s.observe(ctx, span, "fetch", err)
	if err != nil {
		return nil, fmt.Errorf("fetch book %s: %w", id, err)
	}
	return book, nil
}

// Create adds a new book after checking the required fields are present.
func (s *service) Create(ctx context.Context, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create")
	defer span.End()

	if err := CheckRequired(in); err != nil {
		s.observe(ctx, span, "create", err)
		return nil, err
	}

	book, err := s.store.Insert(ctx, in)
	s.observe(ctx, span, "create", err)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	span.SetAttributes(attribute.String("book.id", book.ID.String()))
	s.logger.Info("book created",
		zap.String("id", book.ID.String()),
		zap.String("isbn", book.ISBN),
	)
	return book, nil
}

// Replace applies in to the stored book.
func (s *service) Replace(ctx context.Context, id string, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.replace",
		trace.WithAttributes(attribute.String("book.id", id)),
	)
	defer span.End()

	book, err := s.store.Update(ctx, id, in)
	s.observe(ctx, span, "replace", err)
	if err != nil {
		return nil, fmt.Errorf("update book %s: %w", id, err)
	}
	s.logger.Info("book updated", zap.String("id", id), zap.String("status", string(book.Status)))
	return book, nil
}

// Remove deletes a book permanently.
func (s *service) Remove(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "catalog.remove",
		trace.WithAttributes(attribute.String("book.id", id)),
	)
	defer span.End()

	err := s.store.Delete(ctx, id)
	s.observe(ctx, span, "remove", err)
	if err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	s.logger.Info("book deleted", zap.String("id", id))
	return nil
}

// Stats counts books per status.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.stats")
	defer span.End()

	books, err := s.store.Search(ctx, "")
	s.observe(ctx, span, "stats", err)
	if err != nil {
		return nil, fmt.Errorf("load books for stats: %w", err)
	}

	stats := &Stats{Total: len(books)}
	for _, b := range books {
		stats.AvailableCopies += b.AvailableCopies
		switch b.Status {
		case StatusAvailable:
			stats.Available++
		case StatusCheckedOut:
			stats.CheckedOut++
		case StatusReserved:
			stats.Reserved++
		}
	}
	return stats, nil
}

// Health reports whether the store is reachable.
func (s *service) Health(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "catalog.health")
	defer span.End()

	err := s.store.Ping(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

func (s *service) observe(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		kind := KindOf(err)
		outcome = kind.String()
		span.SetAttributes(attribute.String("error.kind", outcome))
		if kind == KindInternal || kind == KindUnavailable {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("catalog operation failed", zap.String("operation", op), zap.Error(err))
		} else {
			s.logger.Debug("catalog operation rejected", zap.String("operation", op), zap.Error(err))
		}
	}
	if s.operations != nil {
		s.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}
