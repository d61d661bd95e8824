package pagination

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 50, 12345} {
		got, err := DecodeCursor(EncodeCursor(offset))
		if err != nil {
			t.Fatalf("decode(%d): %v", offset, err)
		}
		if got != offset {
			t.Errorf("expected offset %d, got %d", offset, got)
		}
	}

	got, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, c := range []string{"!!!", "bm90LWpzb24", "eyJvIjotMX0"} {
		_, err := DecodeCursor(c)
		if !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("cursor %q: expected ErrInvalidCursor, got %v", c, err)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	assert.NoError(t, ValidateLimit(0))
	assert.NoError(t, ValidateLimit(MaxLimit))
	assert.ErrorIs(t, ValidateLimit(-1), ErrInvalidLimit)
	assert.ErrorIs(t, ValidateLimit(MaxLimit+1), ErrInvalidLimit)
}

func TestApplyDefaults(t *testing.T) {
	if got := ApplyDefaults(0); got != DefaultLimit {
		t.Errorf("Expected default limit to be %d, got %d", DefaultLimit, got)
	}
	if got := ApplyDefaults(MaxLimit + 100); got != MaxLimit {
		t.Errorf("Expected limit to be capped at %d, got %d", MaxLimit, got)
	}
	if got := ApplyDefaults(7); got != 7 {
		t.Errorf("Expected limit 7, got %d", got)
	}
}

func TestPage(t *testing.T) {
	items := make([]int, 120)
	for i := range items {
		items[i] = i
	}

	page, next, err := Page(items, "", 0)
	require.NoError(t, err)
	assert.Len(t, page, DefaultLimit)
	assert.Equal(t, 0, page[0])
	require.NotEmpty(t, next)

	page, next, err = Page(items, next, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, page[0])

	page, next, err = Page(items, next, 0)
	require.NoError(t, err)
	assert.Len(t, page, 20)
	assert.Empty(t, next)
}

func TestPageEdges(t *testing.T) {
	page, next, err := Page([]string{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Empty(t, next)

	page, next, err = Page([]string{"a", "b"}, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page)
	assert.Empty(t, next, "exact fit is the last page")

	_, _, err = Page([]string{"a"}, "garbage!", 10)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidParams))

	_, _, err = Page([]string{"a"}, EncodeCursor(5), 10)
	assert.Error(t, err)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.True(t, c.HasMore)

	c.Update(50, EncodeCursor(50))
	assert.True(t, c.HasMore)
	c.Update(3, "")
	assert.False(t, c.HasMore)
	assert.Equal(t, 53, c.TotalItems)
	assert.Equal(t, 2, c.Pages)
}
