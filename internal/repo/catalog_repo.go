package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookstore/services/storefront/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrBookAlreadyExists is returned when a book with the same ISBN exists
	ErrBookAlreadyExists = errors.New("book with this isbn already exists")

	// ErrInvalidBook is returned when a book lacks isbn, title or price
	ErrInvalidBook = errors.New("isbn, title and price are required")
)

// CatalogRepository handles book catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// ListBooks returns the books matching filter ordered by id. A nil or empty
// filter returns the whole catalog.
func (r *CatalogRepository) ListBooks(ctx context.Context, filter *Filter) ([]*db.Book, error) {
	query := filter.apply(r.db.WithContext(ctx).Model(&db.Book{}))

	var books []*db.Book
	if err := query.Order("id ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}

	return books, nil
}

// GetBook retrieves a book by id
func (r *CatalogRepository) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// GetBookByISBN retrieves a book by ISBN
func (r *CatalogRepository) GetBookByISBN(ctx context.Context, isbn string) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("isbn", isbn), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// CreateBook inserts a single book
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if !validBook(book) {
		return ErrInvalidBook
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrBookAlreadyExists
		}
		r.log.Error("Failed to create book", zap.String("isbn", book.ISBN), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.Uint("id", book.ID), zap.String("isbn", book.ISBN))
	return nil
}

// CreateBooks inserts all books in one transaction. Either every book is
// stored or none is.
func (r *CatalogRepository) CreateBooks(ctx context.Context, books []*db.Book) error {
	if len(books) == 0 {
		return ErrInvalidBook
	}
	for i, book := range books {
		if !validBook(book) {
			return fmt.Errorf("book %d: %w", i, ErrInvalidBook)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, book := range books {
			if err := tx.Create(book).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("isbn %s: %w", book.ISBN, ErrBookAlreadyExists)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookAlreadyExists) {
			r.log.Error("Failed to bulk create books", zap.Int("count", len(books)), zap.Error(err))
		}
		return err
	}

	r.log.Info("Books created", zap.Int("count", len(books)))
	return nil
}

// UpdateBook overwrites the mutable fields of the book with book.ID.
func (r *CatalogRepository) UpdateBook(ctx context.Context, book *db.Book) (*db.Book, error) {
	var updated db.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.Book
		if err := tx.First(&existing, book.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		existing.Title = book.Title
		existing.Author = book.Author
		existing.Genre = book.Genre
		existing.Price = book.Price
		if book.ImageURL != "" {
			existing.ImageURL = book.ImageURL
		}
		if book.Description != "" {
			existing.Description = book.Description
		}

		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookNotFound) {
			r.log.Error("Failed to update book", zap.Uint("id", book.ID), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Book updated", zap.Uint("id", updated.ID))
	return &updated, nil
}

// DeleteBook removes one book
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&db.Book{}, id)
	if result.Error != nil {
		r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(result.Error))
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	r.log.Info("Book deleted", zap.Uint("id", id))
	return nil
}

// DeleteBooks removes every book whose id is listed and returns how many
// rows went away.
func (r *CatalogRepository) DeleteBooks(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&db.Book{})
	if result.Error != nil {
		r.log.Error("Failed to delete books", zap.Int("count", len(ids)), zap.Error(result.Error))
		return 0, result.Error
	}

	r.log.Info("Books deleted", zap.Int64("deleted", result.RowsAffected))
	return result.RowsAffected, nil
}

// DeleteAllBooks empties the catalog and restarts id numbering at 1.
func (r *CatalogRepository) DeleteAllBooks(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec("DELETE FROM books")
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected

		if r.db.IsPostgres() {
			return tx.Exec("ALTER SEQUENCE books_id_seq RESTART WITH 1").Error
		}
		var seqTables int64
		if err := tx.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'").Scan(&seqTables).Error; err != nil {
			return err
		}
		if seqTables == 0 {
			return nil
		}
		return tx.Exec("DELETE FROM sqlite_sequence WHERE name = ?", "books").Error
	})
	if err != nil {
		r.log.Error("Failed to delete all books", zap.Error(err))
		return 0, err
	}

	r.log.Info("Catalog wiped", zap.Int64("deleted", deleted))
	return deleted, nil
}

// GetStats returns the number of books in the catalog
func (r *CatalogRepository) GetStats(ctx context.Context) (total int64, err error) {
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return total, nil
}

func booksByID(tx *gorm.DB, ids []uint) (map[uint]*db.Book, error) {
	out := make(map[uint]*db.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var books []*db.Book
	if err := tx.Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func validBook(book *db.Book) bool {
	return book != nil && book.ISBN != "" && book.Title != "" && !book.Price.IsNegative()
}
