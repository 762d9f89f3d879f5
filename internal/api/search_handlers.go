package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/shopspring/decimal"
)

// addPriceBounds appends the minPrice and maxPrice clauses when present.
func addPriceBounds(f *repo.Filter, q url.Values) error {
	for _, bound := range []struct {
		param string
		apply func(decimal.Decimal) *repo.Filter
	}{
		{"minPrice", f.MinPrice},
		{"maxPrice", f.MaxPrice},
	} {
		raw := strings.TrimSpace(q.Get(bound.param))
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s must be a number", bound.param)
		}
		bound.apply(v)
	}
	return nil
}

func (s *Server) listFiltered(w http.ResponseWriter, r *http.Request, f *repo.Filter) {
	if err := addPriceBounds(f, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	books, err := s.catalog.ListBooks(r.Context(), f)
	if err != nil {
		s.internalError(w, r, "failed to search books", err)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponses(books))
}

// handleSearch matches query (or title) against title, author and genre.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("query")
	if strings.TrimSpace(term) == "" {
		term = q.Get("title")
	}

	f := repo.NewFilter().
		AnyContains(term, repo.ColumnTitle, repo.ColumnAuthor, repo.ColumnGenre).
		Contains(repo.ColumnAuthor, q.Get("author")).
		Contains(repo.ColumnGenre, q.Get("genre"))
	s.listFiltered(w, r, f)
}

func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.NewFilter().
		Contains(repo.ColumnTitle, q.Get("title")).
		Contains(repo.ColumnAuthor, q.Get("author")).
		Contains(repo.ColumnGenre, q.Get("genre"))
	s.listFiltered(w, r, f)
}

// handleFilter matches genre and author as whole list elements.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repo.NewFilter().
		HasElement(repo.ColumnGenre, q.Get("genre")).
		HasElement(repo.ColumnAuthor, q.Get("author")).
		Contains(repo.ColumnTitle, q.Get("title"))
	s.listFiltered(w, r, f)
}
