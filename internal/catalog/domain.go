// internal/catalog/domain.go
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the availability label carried by a book.
type Status string

const (
	StatusAvailable  Status = "Available"
	StatusCheckedOut Status = "Checked Out"
	StatusReserved   Status = "Reserved"
)

// Statuses lists every accepted status value.
var Statuses = []Status{StatusAvailable, StatusCheckedOut, StatusReserved}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	DefaultLocation        = "Main Library"
	DefaultAvailableCopies = 1
	DefaultStatus          = StatusAvailable
)

// Book represents a single catalog record.
type Book struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title" validate:"required"`
	Author          string    `json:"author" db:"author" validate:"required"`
	ISBN            string    `json:"isbn" db:"isbn" validate:"required"`
	Category        string    `json:"category" db:"category" validate:"required"`
	PublishYear     int       `json:"publishYear" db:"publish_year"`
	AvailableCopies int       `json:"availableCopies" db:"available_copies" validate:"gte=0"`
	Location        string    `json:"location" db:"location"`
	Status          Status    `json:"status" db:"status" validate:"bookstatus"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// BookInput carries caller-supplied fields for a create or an update.
// A nil field is absent: create falls back to defaults, update leaves the
// stored value untouched.
type BookInput struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	Category        *string `json:"category,omitempty"`
	PublishYear     *Number `json:"publishYear,omitempty"`
	AvailableCopies *Number `json:"availableCopies,omitempty"`
	Location        *string `json:"location,omitempty"`
	Status          *string `json:"status,omitempty"`
}

// InputFrom builds a full BookInput from an existing book, for callers that
// want to send every field back.
func InputFrom(b Book) BookInput {
	status := string(b.Status)
	return BookInput{
		Title:           &b.Title,
		Author:          &b.Author,
		ISBN:            &b.ISBN,
		Category:        &b.Category,
		PublishYear:     IntNumber(b.PublishYear),
		AvailableCopies: IntNumber(b.AvailableCopies),
		Location:        &b.Location,
		Status:          &status,
	}
}

// Number is a numeric field as the caller sent it: a JSON number or a
// numeric string. It is coerced to an int during validation.
type Number string

// IntNumber returns a *Number holding n.
func IntNumber(n int) *Number {
	v := Number(strconv.Itoa(n))
	return &v
}

// UnmarshalJSON accepts 2009, 2009.0 and "2009". Anything else is kept
// verbatim so validation can report it.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	*n = Number(data)
	return nil
}

// MarshalJSON emits the coerced integer when possible.
func (n Number) MarshalJSON() ([]byte, error) {
	if v, err := n.Int(); err == nil {
		return []byte(strconv.Itoa(v)), nil
	}
	return json.Marshal(string(n))
}

// Int coerces the number to an int.
func (n Number) Int() (int, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) ||
		f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%q is not an integer", string(n))
	}
	return int(f), nil
}

// Stats summarises the catalog for dashboards.
type Stats struct {
	Total           int `json:"total"`
	Available       int `json:"available"`
	CheckedOut      int `json:"checkedOut"`
	Reserved        int `json:"reserved"`
	AvailableCopies int `json:"availableCopies"`
}
