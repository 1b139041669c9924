// internal/catalog/errors.go
package catalog

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("book not found")
	ErrInvalidID          = errors.New("invalid book id")
	ErrDuplicateISBN      = errors.New("a book with this isbn already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrMissingFields      = errors.New("missing required fields")
)

// ValidationError lists the fields that failed validation, keyed by their
// JSON name. Missing marks a failed required-field pre-check.
type ValidationError struct {
	Fields  map[string]string
	Missing bool
}

func (e *ValidationError) Error() string {
	prefix := ErrValidation.Error()
	if e.Missing {
		prefix = ErrMissingFields.Error()
	}
	if len(e.Fields) == 0 {
		return prefix
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

// Is matches ErrValidation, and ErrMissingFields for pre-check failures.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrMissingFields:
		return e.Missing
	}
	return false
}

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// KindOf maps err onto the outcome a caller should report.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrValidation):
		return KindBadRequest
	case errors.Is(err, ErrDuplicateISBN):
		return KindConflict
	case errors.Is(err, ErrStorageUnavailable):
		return KindUnavailable
	}
	return KindInternal
}
