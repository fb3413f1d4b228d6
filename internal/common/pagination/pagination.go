// Package pagination slices list responses into pages selected by the
// page and per_page query parameters.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Params struct {
	Page    int
	PerPage int
}

// ParseParams reads page (1-based) and per_page from the query string.
// Missing or invalid values fall back to the first page of DefaultPerPage;
// per_page is capped at MaxPerPage.
func ParseParams(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

type Response[T any] struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []T `json:"results"`
}

// Paginate returns the page of items selected by p. A page past the end
// has no results but still reports the totals.
func Paginate[T any](items []T, p Params) Response[T] {
	start := p.Offset()
	if start > len(items) {
		start = len(items)
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return Response[T]{
		Page:         p.Page,
		PerPage:      p.PerPage,
		TotalPages:   totalPages(len(items), p.PerPage),
		TotalResults: len(items),
		Results:      items[start:end],
	}
}

func totalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	if total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
