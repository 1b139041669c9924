// internal/catalog/store.go
package catalog

import "context"

//go:generate mockgen -destination=mock_store_test.go -package=catalog_test bookcatalog/internal/catalog Store

// Store owns the collection of book records. Implementations make the ISBN
// uniqueness check and the write a single atomic step and fail with
// ErrStorageUnavailable when the backing storage cannot be reached.
type Store interface {
	Insert(ctx context.Context, in BookInput) (*Book, error)
	Get(ctx context.Context, id string) (*Book, error)
	Update(ctx context.Context, id string, patch BookInput) (*Book, error)
	Delete(ctx context.Context, id string) error
	// Search returns records whose title, author or isbn contains query,
	// ignoring case, newest first. An empty query returns every record.
	Search(ctx context.Context, query string) ([]Book, error)
	Ping(ctx context.Context) error
	Close() error
}
