package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/book"
)

// ListBooks returns a page of listed books.
//
// Query parameters: search, category, minPrice, maxPrice, inStock, sort,
// page and limit.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	filter, err := bookFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.books.List(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookListResponse(list))
}

// GetBook returns a single listed book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.books.Get(r.Context(), chi.URLParam(r, "bookId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponse(b))
}

func bookFilter(r *http.Request) (book.Filter, error) {
	q := r.URL.Query()
	f := book.Filter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
	}

	var err error
	if f.Sort, err = book.ParseSort(q.Get("sort")); err != nil {
		return f, err
	}
	if f.MinPrice, err = queryDecimal(r, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(r, "maxPrice"); err != nil {
		return f, err
	}
	if f.InStock, err = queryBool(r, "inStock"); err != nil {
		return f, err
	}
	return f, nil
}
