package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. A zero total yields zero pages;
// page and per-page are clamped to sane values.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the zero-based item offset of the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// Multi reports whether pagination controls should render at all. Zero or
// one page means nothing to navigate.
func (p Pagination) Multi() bool { return p.TotalPages > 1 }

// Window returns up to max page numbers centred on the current page, for
// rendering numbered pagination controls. Empty when there are no pages.
func (p Pagination) Window(max int) []int {
	if p.TotalPages <= 0 || max <= 0 {
		return nil
	}
	start := p.Page - max/2
	if start < 1 {
		start = 1
	}
	end := start + max - 1
	if end > p.TotalPages {
		end = p.TotalPages
		if start = end - max + 1; start < 1 {
			start = 1
		}
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}
