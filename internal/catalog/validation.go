// internal/catalog/validation.go
package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// requiredFields are the string fields a create request must carry.
// publishYear is checked separately: a stored record may hold year 0.
var requiredFields = []string{"Title", "Author", "ISBN", "Category"}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("bookstatus", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
}

// fieldErrors accumulates messages per field. The first failure for a field
// wins.
type fieldErrors map[string]string

func (fe fieldErrors) add(field, message string) {
	if _, exists := fe[field]; !exists {
		fe[field] = message
	}
}

func (fe fieldErrors) err(missing bool) error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Fields: fe, Missing: missing}
}

// check runs the struct rules over b, optionally restricted to the named
// struct fields, and records failures in fe. Every validation path in the
// package goes through here.
func check(b *Book, fe fieldErrors, only ...string) {
	var err error
	if len(only) > 0 {
		err = validate.StructPartial(b, only...)
	} else {
		err = validate.Struct(b)
	}
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fe.add("book", err.Error())
		return
	}
	for _, v := range verrs {
		fe.add(v.Field(), message(v))
	}
}

func message(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + v.Param()
	case "bookstatus":
		return fmt.Sprintf("must be one of %q, %q or %q", StatusAvailable, StatusCheckedOut, StatusReserved)
	}
	return "is invalid"
}

// CheckRequired reports, as an error matching ErrMissingFields, every
// required field that is absent or empty in in. Malformed numbers count as
// present; NewBook reports them. A zero publishYear counts as missing here
// only.
func CheckRequired(in BookInput) error {
	var b Book
	assign(&b, in, fieldErrors{})
	fe := fieldErrors{}
	check(&b, fe, requiredFields...)
	if in.PublishYear == nil {
		fe.add("publishYear", "is required")
	} else if year, err := in.PublishYear.Int(); err == nil && year == 0 {
		fe.add("publishYear", "is required")
	}
	return fe.err(true)
}

// NewBook validates in as a new record and returns it with defaults,
// identifier and timestamps filled in.
func NewBook(in BookInput, now time.Time) (Book, error) {
	now = Timestamp(now)
	b := Book{
		ID:              uuid.New(),
		AvailableCopies: DefaultAvailableCopies,
		Location:        DefaultLocation,
		Status:          DefaultStatus,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	fe := fieldErrors{}
	if in.PublishYear == nil {
		fe.add("publishYear", "is required")
	}
	assign(&b, in, fe)
	check(&b, fe)
	if err := fe.err(false); err != nil {
		return Book{}, err
	}
	return b, nil
}

// ApplyPatch merges patch onto b, re-validates the merged record and bumps
// UpdatedAt past its previous value.
func ApplyPatch(b Book, patch BookInput, now time.Time) (Book, error) {
	fe := fieldErrors{}
	assign(&b, patch, fe)
	check(&b, fe)
	if err := fe.err(false); err != nil {
		return Book{}, err
	}
	b.UpdatedAt = NextUpdate(b.UpdatedAt, now)
	return b, nil
}

// assign copies the present fields of in onto b, trimming free-text strings
// and coercing numbers. Status is taken verbatim. Coercion failures land in
// fe.
func assign(b *Book, in BookInput, fe fieldErrors) {
	if in.Title != nil {
		b.Title = strings.TrimSpace(*in.Title)
	}
	if in.Author != nil {
		b.Author = strings.TrimSpace(*in.Author)
	}
	if in.ISBN != nil {
		b.ISBN = strings.TrimSpace(*in.ISBN)
	}
	if in.Category != nil {
		b.Category = strings.TrimSpace(*in.Category)
	}
	if in.PublishYear != nil {
		v, err := in.PublishYear.Int()
		switch {
		case strings.TrimSpace(string(*in.PublishYear)) == "":
			fe.add("publishYear", "is required")
		case err != nil:
			fe.add("publishYear", "must be an integer")
		}
		b.PublishYear = v
	}
	if in.AvailableCopies != nil {
		v, err := in.AvailableCopies.Int()
		if err != nil {
			fe.add("availableCopies", "must be an integer")
		}
		b.AvailableCopies = v
	}
	if in.Location != nil {
		b.Location = strings.TrimSpace(*in.Location)
		if b.Location == "" {
			b.Location = DefaultLocation
		}
	}
	if in.Status != nil {
		b.Status = Status(*in.Status)
	}
}

// ParseID parses a record identifier.
func ParseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return parsed, nil
}

// Matches reports whether query occurs, ignoring case, in the title, author
// or isbn of b. An empty query matches everything.
func Matches(b Book, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q) ||
		strings.Contains(strings.ToLower(b.ISBN), q)
}

// Timestamp normalises t to the precision every backend can store.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NextUpdate returns now, or the smallest representable instant after prev
// when the clock has not moved past it.
func NextUpdate(prev, now time.Time) time.Time {
	now = Timestamp(now)
	if !now.After(prev) {
		return Timestamp(prev).Add(time.Microsecond)
	}
	return now
}
