// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the interface for the catalog service.
type Service interface {
	ListOrSearch(ctx context.Context, query string) ([]Book, error)
	Fetch(ctx context.Context, id string) (*Book, error)
	Create(ctx context.Context, in BookInput) (*Book, error)
	Replace(ctx context.Context, id string, in BookInput) (*Book, error)
	Remove(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
	Health(ctx context.Context) error
}
