package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/events"
	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

// validateBookRequest returns a client-facing message, or "" when req is valid.
func (s *Server) validateBookRequest(req interface{}, price *decimal.Decimal) string {
	if err := s.validate.Struct(req); err != nil {
		return validationMessage(err)
	}
	if price != nil && price.IsNegative() {
		return "price must not be negative"
	}
	return ""
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.catalog.ListBooks(r.Context(), nil)
	if err != nil {
		s.internalError(w, r, "failed to list books", err)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponses(books))
}

// handleGetBook looks the key up as an id first and then as an ISBN, so
// both /api/books/3 and /api/books/9780547928227 resolve.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "id"))

	var (
		book *db.Book
		err  = repo.ErrBookNotFound
	)
	if id, idErr := parseID(key); idErr == nil {
		book, err = s.catalog.GetBook(r.Context(), id)
	}
	if errors.Is(err, repo.ErrBookNotFound) && key != "" {
		book, err = s.catalog.GetBookByISBN(r.Context(), key)
	}
	if err != nil {
		if errors.Is(err, repo.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		s.internalError(w, r, "failed to get book", err)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponse(book))
}

func (s *Server) handleGetBookByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := s.catalog.GetBookByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		if errors.Is(err, repo.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		s.internalError(w, r, "failed to get book", err)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponse(book))
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := s.validateBookRequest(&req, req.Price); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	book := req.toBook(user.Username)
	if err := s.catalog.CreateBook(r.Context(), book); err != nil {
		switch {
		case errors.Is(err, repo.ErrBookAlreadyExists):
			writeError(w, http.StatusBadRequest, "a book with this isbn already exists")
		case errors.Is(err, repo.ErrInvalidBook):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "failed to create book", err)
		}
		return
	}

	s.publish(r, events.EventTypeCatalogCreated, func(ctx context.Context) error {
		return s.publisher.PublishBookCreated(ctx, book)
	})
	writeJSON(w, http.StatusCreated, newBookResponse(book))
}

// handleBulkCreateBooks stores every book in the array or none of them.
func (s *Server) handleBulkCreateBooks(w http.ResponseWriter, r *http.Request) {
	var reqs []bookRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one book is required")
		return
	}

	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	books := make([]*db.Book, 0, len(reqs))
	for i := range reqs {
		if msg := s.validateBookRequest(&reqs[i], reqs[i].Price); msg != "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("book %d: %s", i, msg))
			return
		}
		books = append(books, reqs[i].toBook(user.Username))
	}

	if err := s.catalog.CreateBooks(r.Context(), books); err != nil {
		switch {
		case errors.Is(err, repo.ErrBookAlreadyExists), errors.Is(err, repo.ErrInvalidBook):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, r, "failed to create books", err)
		}
		return
	}

	for _, book := range books {
		s.publish(r, events.EventTypeCatalogCreated, func(ctx context.Context) error {
			return s.publisher.PublishBookCreated(ctx, book)
		})
	}
	writeJSON(w, http.StatusCreated, newBookResponses(books))
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := s.validateBookRequest(&req, req.Price); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := s.catalog.UpdateBook(r.Context(), &db.Book{
		ID:          id,
		Title:       req.Title,
		Author:      req.Author.String(),
		Genre:       req.Genre.String(),
		Price:       *req.Price,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, repo.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		s.internalError(w, r, "failed to update book", err)
		return
	}

	s.publish(r, events.EventTypeCatalogUpdated, func(ctx context.Context) error {
		return s.publisher.PublishBookUpdated(ctx, updated)
	})
	writeJSON(w, http.StatusOK, newBookResponse(updated))
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.catalog.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		s.internalError(w, r, "failed to delete book", err)
		return
	}

	s.publish(r, events.EventTypeCatalogDeleted, func(ctx context.Context) error {
		return s.publisher.PublishBooksDeleted(ctx, []uint{id}, false)
	})
	w.WriteHeader(http.StatusNoContent)
}

type deleteBooksRequest struct {
	IDs []json.RawMessage `json:"ids"`
}

// parseIDList accepts JSON integers and strings holding integers. Any other
// element rejects the whole list.
func parseIDList(raw []json.RawMessage) ([]uint, error) {
	if len(raw) == 0 {
		return nil, errors.New("ids must be a non-empty array")
	}

	ids := make([]uint, 0, len(raw))
	for i, msg := range raw {
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("ids[%d] is not valid JSON", i)
		}

		var text string
		switch t := v.(type) {
		case json.Number:
			text = t.String()
		case string:
			text = t
		default:
			return nil, fmt.Errorf("ids[%d] must be an integer", i)
		}

		id, err := parseID(text)
		if err != nil {
			return nil, fmt.Errorf("ids[%d] must be a positive integer", i)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Server) handleDeleteBooks(w http.ResponseWriter, r *http.Request) {
	var req deleteBooksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := parseIDList(req.IDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.catalog.DeleteBooks(r.Context(), ids)
	if err != nil {
		s.internalError(w, r, "failed to delete books", err)
		return
	}

	if deleted > 0 {
		s.publish(r, events.EventTypeCatalogDeleted, func(ctx context.Context) error {
			return s.publisher.PublishBooksDeleted(ctx, ids, false)
		})
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleDeleteAllBooks(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.catalog.DeleteAllBooks(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to delete books", err)
		return
	}

	s.publish(r, events.EventTypeCatalogDeleted, func(ctx context.Context) error {
		return s.publisher.PublishBooksDeleted(ctx, nil, true)
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "all books deleted",
		"deleted": deleted,
	})
}
