// internal/clients/catalog_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookcatalog/internal/catalog"
)

var _ catalog.Service = (*CatalogClient)(nil)

// CatalogClient talks to a catalog server over its HTTP API. Failures come
// back as the same catalog errors the server reported.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*CatalogClient)

// WithHTTPClient replaces the default client, which times out after ten
// seconds.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CatalogClient) { c.httpClient = hc }
}

func NewCatalogClient(baseURL string, opts ...Option) *CatalogClient {
	c := &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CatalogClient) ListOrSearch(ctx context.Context, query string) ([]catalog.Book, error) {
	path := "/api/books"
	if query != "" {
		path += "?search=" + url.QueryEscape(query)
	}
	books := []catalog.Book{}
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *CatalogClient) Fetch(ctx context.Context, id string) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) Create(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/api/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) Replace(ctx context.Context, id string, in catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPut, "/api/books/"+url.PathEscape(id), in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/books/"+url.PathEscape(id), nil, nil)
}

func (c *CatalogClient) Stats(ctx context.Context) (*catalog.Stats, error) {
	var stats catalog.Stats
	if err := c.do(ctx, http.MethodGet, "/api/books/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *CatalogClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *CatalogClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", catalog.ErrStorageUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response back into the catalog error it was
// built from.
func decodeError(resp *http.Response) error {
	var body catalog.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil || body.Code == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	switch body.Code {
	case catalog.CodeNotFound:
		return catalog.ErrNotFound
	case catalog.CodeInvalidID:
		return catalog.ErrInvalidID
	case catalog.CodeMissingFields:
		return &catalog.ValidationError{Fields: body.Fields, Missing: true}
	case catalog.CodeValidationFailed:
		return &catalog.ValidationError{Fields: body.Fields}
	case catalog.CodeDuplicateISBN:
		return catalog.ErrDuplicateISBN
	case catalog.CodeStorageUnavailable:
		return fmt.Errorf("%w: %s", catalog.ErrStorageUnavailable, body.Message)
	}
	return errors.New(body.Message + " (" + body.Code + ")")
}
