// Package pagination implements page/limit windows for list endpoints.
package pagination

import "math"

const (
	// DefaultLimit is the page size used when a limit is not provided.
	DefaultLimit = 12
	// MaxLimit caps how many rows a single page may request.
	MaxLimit = 50
)

// Params holds the configured page size bounds.
type Params struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultParams returns the package defaults.
func DefaultParams() Params {
	return Params{DefaultLimit: DefaultLimit, MaxLimit: MaxLimit}
}

// Page is a 1-based page window.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Normalize clamps page to at least 1 and limit to [1, MaxLimit], falling
// back to DefaultLimit when limit is not positive. Page is capped so that
// Offset never overflows.
func (p Params) Normalize(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	def, maxLimit := p.DefaultLimit, p.MaxLimit
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if def <= 0 || def > maxLimit {
		def = min(DefaultLimit, maxLimit)
	}
	switch {
	case limit <= 0:
		limit = def
	case limit > maxLimit:
		limit = maxLimit
	}
	if last := math.MaxInt / limit; page > last {
		page = last
	}
	return Page{Page: page, Limit: limit}
}

// TotalPages returns how many pages of limit rows hold total rows.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
