package repo

import (
	"context"
	"testing"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/db/dbtest"
	"github.com/bookstore/services/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRepo(t *testing.T) *CatalogRepository {
	return NewCatalogRepository(dbtest.Open(t), logger.NewTestLogger("test"))
}

func testBook(isbn, title, author, genre, price string) *db.Book {
	return &db.Book{
		ISBN:   isbn,
		Title:  title,
		Author: author,
		Genre:  genre,
		Price:  decimal.RequireFromString(price),
	}
}

func seedCatalog(t *testing.T, r *CatalogRepository) {
	books := []*db.Book{
		testBook("111", "The Go Programming Language", "Alan Donovan, Brian Kernighan", "Programming", "39.99"),
		testBook("222", "The Hobbit", "J.R.R. Tolkien", "Fantasy, Adventure", "16.99"),
		testBook("333", "Dune", "Frank Herbert", "Science Fiction", "12.50"),
		testBook("444", "100% Go", "Gopher", "Programming", "5.00"),
	}
	require.NoError(t, r.CreateBooks(context.Background(), books))
}

func TestCreateBook(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	book := testBook("978-0", "Test Book", "Test Author", "test", "19.99")
	err := repo.CreateBook(ctx, book)
	assert.NoError(t, err)
	assert.NotZero(t, book.ID)

	retrieved, err := repo.GetBook(ctx, book.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Test Book", retrieved.Title)
	assert.Equal(t, "Test Author", retrieved.Author)
	assert.Equal(t, "19.99", retrieved.Price.StringFixed(2))

	byISBN, err := repo.GetBookByISBN(ctx, "978-0")
	assert.NoError(t, err)
	assert.Equal(t, book.ID, byISBN.ID)
}

func TestCreateBookNormalizesLists(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	book := testBook("1", "Anthology", " Ann ,Bob,, ", "fiction ,  poetry", "1")
	require.NoError(t, repo.CreateBook(ctx, book))

	stored, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann, Bob", stored.Author)
	assert.Equal(t, "fiction, poetry", stored.Genre)
}

func TestCreateBookDuplicate(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBook(ctx, testBook("dup", "One", "A", "g", "1")))

	err := repo.CreateBook(ctx, testBook("dup", "Two", "B", "g", "2"))
	assert.ErrorIs(t, err, ErrBookAlreadyExists)
}

func TestCreateBookInvalid(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.CreateBook(ctx, testBook("", "No ISBN", "A", "g", "1")), ErrInvalidBook)
	assert.ErrorIs(t, repo.CreateBook(ctx, testBook("1", "", "A", "g", "1")), ErrInvalidBook)
	assert.ErrorIs(t, repo.CreateBook(ctx, testBook("1", "Negative", "A", "g", "-1")), ErrInvalidBook)
}

func TestCreateBooksAllOrNothing(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	books := []*db.Book{
		testBook("a", "First", "A", "g", "1"),
		testBook("", "Missing ISBN", "B", "g", "2"),
	}
	err := repo.CreateBooks(ctx, books)
	assert.ErrorIs(t, err, ErrInvalidBook)

	all, err := repo.ListBooks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateBooksRollsBackOnDuplicate(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBook(ctx, testBook("taken", "Existing", "A", "g", "1")))

	books := []*db.Book{
		testBook("fresh", "New", "B", "g", "2"),
		testBook("taken", "Clash", "C", "g", "3"),
	}
	err := repo.CreateBooks(ctx, books)
	assert.ErrorIs(t, err, ErrBookAlreadyExists)

	_, err = repo.GetBookByISBN(ctx, "fresh")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetBook(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	_, err := repo.GetBook(ctx, 404)
	assert.Equal(t, ErrBookNotFound, err)

	_, err = repo.GetBookByISBN(ctx, "missing")
	assert.Equal(t, ErrBookNotFound, err)
}

func TestUpdateBook(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	book := testBook("upd", "Original Title", "Original Author", "g", "19.99")
	book.Description = "kept"
	require.NoError(t, repo.CreateBook(ctx, book))

	updated, err := repo.UpdateBook(ctx, &db.Book{
		ID:     book.ID,
		Title:  "Updated Title",
		Author: "Original Author",
		Genre:  "g",
		Price:  decimal.RequireFromString("29.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "kept", updated.Description)

	stored, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "29.99", stored.Price.StringFixed(2))
	assert.Equal(t, "upd", stored.ISBN)

	_, err = repo.UpdateBook(ctx, &db.Book{ID: 999, Title: "x"})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()

	book := testBook("del", "To Delete", "A", "g", "1")
	require.NoError(t, repo.CreateBook(ctx, book))

	assert.NoError(t, repo.DeleteBook(ctx, book.ID))
	assert.ErrorIs(t, repo.DeleteBook(ctx, book.ID), ErrBookNotFound)
}

func TestDeleteBooks(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()
	seedCatalog(t, repo)

	deleted, err := repo.DeleteBooks(ctx, []uint{1, 3, 42})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.ListBooks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, uint(2), remaining[0].ID)
	assert.Equal(t, uint(4), remaining[1].ID)
}

func TestDeleteAllBooksResetsSequence(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()
	seedCatalog(t, repo)

	deleted, err := repo.DeleteAllBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	total, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	book := testBook("again", "Fresh Start", "A", "g", "1")
	require.NoError(t, repo.CreateBook(ctx, book))
	assert.Equal(t, uint(1), book.ID)
}

func TestListBooksFilters(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()
	seedCatalog(t, repo)

	titles := func(f *Filter) []string {
		books, err := repo.ListBooks(ctx, f)
		require.NoError(t, err)
		out := make([]string, 0, len(books))
		for _, b := range books {
			out = append(out, b.Title)
		}
		return out
	}

	assert.Len(t, titles(NewFilter()), 4)

	assert.Equal(t, []string{"The Go Programming Language", "The Hobbit"},
		titles(NewFilter().Contains(ColumnTitle, "THE")))

	assert.Equal(t, []string{"The Go Programming Language"},
		titles(NewFilter().Contains(ColumnAuthor, "kernighan")))

	assert.Equal(t, []string{"The Hobbit"},
		titles(NewFilter().HasElement(ColumnGenre, "adventure")))

	// "Fiction" is only a substring of "Science Fiction", not an element.
	assert.Empty(t, titles(NewFilter().HasElement(ColumnGenre, "fiction")))

	assert.Equal(t, []string{"The Hobbit", "Dune"},
		titles(NewFilter().
			MinPrice(decimal.RequireFromString("10")).
			MaxPrice(decimal.RequireFromString("20"))))

	// LIKE wildcards in input are matched literally.
	assert.Equal(t, []string{"100% Go"}, titles(NewFilter().Contains(ColumnTitle, "0%")))
	assert.Empty(t, titles(NewFilter().Contains(ColumnTitle, "_")))

	assert.Equal(t, []string{"The Go Programming Language", "100% Go"},
		titles(NewFilter().AnyContains("programming", ColumnTitle, ColumnAuthor, ColumnGenre)))
}

func TestListBooksFiltersNarrow(t *testing.T) {
	repo := newCatalogRepo(t)
	ctx := context.Background()
	seedCatalog(t, repo)

	steps := []func(*Filter){
		func(f *Filter) { f.AnyContains("o", ColumnTitle, ColumnAuthor, ColumnGenre) },
		func(f *Filter) { f.Contains(ColumnGenre, "programming") },
		func(f *Filter) { f.MinPrice(decimal.RequireFromString("10")) },
		func(f *Filter) { f.MaxPrice(decimal.RequireFromString("30")) },
	}

	f := NewFilter()
	previous, err := repo.ListBooks(ctx, f)
	require.NoError(t, err)

	for _, step := range steps {
		step(f)
		current, err := repo.ListBooks(ctx, f)
		require.NoError(t, err)

		prevIDs := map[uint]bool{}
		for _, b := range previous {
			prevIDs[b.ID] = true
		}
		for _, b := range current {
			assert.True(t, prevIDs[b.ID], "book %d appeared after narrowing", b.ID)
		}
		assert.LessOrEqual(t, len(current), len(previous))
		previous = current
	}
}
