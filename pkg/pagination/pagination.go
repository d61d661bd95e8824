// Package pagination implements the opaque cursors of the list methods.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

const (
	// DefaultLimit is the page size used when the caller does not set one.
	DefaultLimit = 50

	// MaxLimit is the largest page size served.
	MaxLimit = 200
)

var (
	// ErrInvalidLimit is returned when the pagination limit is invalid
	ErrInvalidLimit = errors.New("pagination limit must be greater than 0 and less than or equal to MaxLimit")

	// ErrInvalidCursor is returned when a pagination cursor is invalid
	ErrInvalidCursor = errors.New("invalid pagination cursor format")
)

type cursor struct {
	Offset int `json:"o"`
}

// EncodeCursor returns the cursor that resumes a listing at offset.
func EncodeCursor(offset int) string {
	data, _ := json.Marshal(cursor{Offset: offset})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor returns the offset a cursor resumes at. The empty cursor is
// offset zero.
func DecodeCursor(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.Offset < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidCursor)
	}
	return c.Offset, nil
}

// ValidateLimit rejects negative limits and limits above MaxLimit. Zero means
// the default.
func ValidateLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if limit > MaxLimit {
		return fmt.Errorf("%w: got %d, max is %d", ErrInvalidLimit, limit, MaxLimit)
	}
	return nil
}

// ApplyDefaults maps a zero or negative limit to DefaultLimit and caps it at
// MaxLimit.
func ApplyDefaults(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Page returns the slice of items the cursor selects and the cursor of the
// following page, empty on the last page. A malformed cursor is an
// InvalidParams error.
func Page[T any](items []T, cur string, limit int) ([]T, string, error) {
	offset, err := DecodeCursor(cur)
	if err != nil {
		return nil, "", mcperrors.InvalidParams("invalid cursor")
	}
	limit = ApplyDefaults(limit)

	if offset >= len(items) {
		if offset > 0 && offset > len(items) {
			return nil, "", mcperrors.InvalidParams("invalid cursor")
		}
		return []T{}, "", nil
	}

	end := offset + limit
	if end >= len(items) {
		return items[offset:], "", nil
	}
	return items[offset:end], EncodeCursor(end), nil
}

// Collector accumulates the pages of a listing on the client side.
type Collector struct {
	// NextCursor holds the pagination cursor for the next page
	NextCursor string
	// HasMore indicates if there are more pages to fetch
	HasMore bool
	// TotalItems is the total number of items collected so far
	TotalItems int
	// Pages counts the pages seen.
	Pages int
}

// NewCollector creates a collector positioned at the first page.
func NewCollector() *Collector {
	return &Collector{HasMore: true}
}

// Update records one page of n items and its next cursor.
func (c *Collector) Update(n int, nextCursor string) {
	c.Pages++
	c.TotalItems += n
	c.NextCursor = nextCursor
	c.HasMore = nextCursor != ""
}
