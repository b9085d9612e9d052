// Package pagination implements keyset (created_at, id) cursors for list endpoints.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params are the raw paging inputs taken from a request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

type wireCursor struct {
	At int64 `json:"t"`
	ID int64 `json:"i"`
}

// Page is one slice of results plus the opaque cursor for the next slice.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NormalizeLimit clamps limit into 1..MaxLimit, using DefaultLimit for zero or less.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one extra row so a next page can be detected.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	raw, _ := json.Marshal(wireCursor{At: c.CreatedAt.UnixNano(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes value; a blank value means the first page (nil, nil).
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var wc wireCursor
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if wc.ID <= 0 || wc.At <= 0 {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &Cursor{CreatedAt: time.Unix(0, wc.At).UTC(), ID: wc.ID}, nil
}

// Build turns rows fetched with LimitWithBuffer(limit) into a page, mapping
// each kept row through conv and deriving the next cursor from key.
func Build[R, T any](rows []R, limit int, key func(R) Cursor, conv func(R) T) Page[T] {
	limit = NormalizeLimit(limit)
	page := Page[T]{Items: make([]T, 0, min(len(rows), limit))}
	if len(rows) > limit {
		page.NextCursor = EncodeCursor(key(rows[limit-1]))
		rows = rows[:limit]
	}
	for _, row := range rows {
		page.Items = append(page.Items, conv(row))
	}
	return page
}
