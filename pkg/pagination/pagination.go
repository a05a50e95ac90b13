package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/JaimeStill/kisaanseva/pkg/query"
)

// maxSearchLength caps free-text search terms taken from the query string.
const maxSearchLength = 100

// PageRequest is a normalized request for one page of a listing.
type PageRequest struct {
	Page     int               `json:"page"`
	PageSize int               `json:"per_page"`
	Search   *string           `json:"search,omitempty"`
	Sort     []query.SortField `json:"sort,omitempty"`
}

// Normalize clamps Page to at least 1 and PageSize to [1, MaxPageSize],
// substituting DefaultPageSize when unset.
func (r *PageRequest) Normalize(cfg Config) {
	r.Page = max(r.Page, 1)
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	r.PageSize = min(r.PageSize, cfg.MaxPageSize)
}

// Offset calculates the number of records to skip based on page and page size.
func (r *PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// Window slices items to the requested page, for stores that filter in memory.
// It never returns nil.
func Window[T any](items []T, req PageRequest) []T {
	start := req.Offset()
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+req.PageSize, len(items))]
}

// PageRequestFromQuery reads page, per_page (or page_size), search, and sort
// from query values and normalizes the result. Search is trimmed and
// truncated to 100 runes.
func PageRequestFromQuery(values url.Values, cfg Config) PageRequest {
	req := PageRequest{
		Page:     atoi(values.Get("page")),
		PageSize: atoi(values.Get("per_page")),
		Sort:     query.ParseSortFields(values.Get("sort")),
	}
	if req.PageSize == 0 {
		req.PageSize = atoi(values.Get("page_size"))
	}

	if s := strings.TrimSpace(values.Get("search")); s != "" {
		if r := []rune(s); len(r) > maxSearchLength {
			s = string(r[:maxSearchLength])
		}
		req.Search = &s
	}

	req.Normalize(cfg)
	return req
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// PageResult holds a page of items along with pagination metadata.
type PageResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"per_page"`
	TotalPages int `json:"pages"`
}

// NewPageResult creates a PageResult. TotalPages is at least 1 and Items is
// never nil.
func NewPageResult[T any](items []T, total, page, pageSize int) PageResult[T] {
	pageSize = max(pageSize, 1)
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: max((total+pageSize-1)/pageSize, 1),
	}
}
