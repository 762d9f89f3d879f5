package db

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Book represents a book in the catalog
type Book struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ISBN        string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_books_isbn" json:"isbn"`
	Title       string          `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author      string          `gorm:"type:varchar(512)" json:"author"` // comma-separated when several
	Genre       string          `gorm:"type:varchar(255);index:idx_books_genre" json:"genre"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	ImageURL    string          `gorm:"type:text" json:"image_url,omitempty"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Username    string          `gorm:"type:varchar(100)" json:"username,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// BeforeSave normalizes the list-valued columns.
func (b *Book) BeforeSave(tx *gorm.DB) error {
	b.Author = JoinList(SplitList(b.Author))
	b.Genre = JoinList(SplitList(b.Genre))
	return nil
}

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_username" json:"username"`
	Email         string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email" json:"email"`
	PasswordHash  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role          string    `gorm:"type:varchar(16);not null;default:'user'" json:"role"`
	ProfilePicURL string    `gorm:"type:text" json:"profile_pic_url,omitempty"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Order is a placed order with its priced lines.
type Order struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index:idx_orders_user" json:"user_id"`
	User      *User           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Items     []OrderItem     `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem records one cart line at the price it had when the order was placed.
// BookID is not a foreign key: books may be deleted after the sale.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index:idx_order_items_order" json:"order_id"`
	BookID    uint            `gorm:"not null" json:"book_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// SplitList splits a comma-separated value into trimmed, non-empty elements.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(parts []string) string {
	return strings.Join(parts, ", ")
}
