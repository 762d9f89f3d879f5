package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &User{}, &Order{}, &OrderItem{}); err != nil {
		return err
	}

	if db.IsPostgres() {
		if err := createIndexes(db.DB); err != nil {
			return err
		}
	}

	return nil
}

// createIndexes adds the PostgreSQL-only expression indexes backing the
// case-insensitive search predicates.
func createIndexes(db *gorm.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_books_title_lower ON books (LOWER(title))`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_lower ON books (LOWER(author))`,
		`CREATE INDEX IF NOT EXISTS idx_books_price ON books (price)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
