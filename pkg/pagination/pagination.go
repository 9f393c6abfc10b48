// Package pagination reads page/limit query parameters and derives page
// metadata for list responses.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

// FromRequest extracts ?page and ?limit. Invalid values fall back to the
// defaults; a limit above MaxLimit is clamped.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = min(v, MaxLimit)
	}
	return p
}

// Offset is the zero-based index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes where a page sits in the full result set.
type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewMeta computes page metadata. A non-positive limit yields a single page.
func NewMeta(total, page, limit int) Meta {
	if page < 1 {
		page = 1
	}
	totalPages := 1
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	if totalPages == 0 {
		totalPages = 1
	}
	return Meta{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
