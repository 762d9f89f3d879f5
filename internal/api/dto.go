package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/shopspring/decimal"
)

// flexList accepts either "A, B" or ["A", "B"].
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = db.SplitList(s)
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return errors.New("must be a string or an array of strings")
	}
	*l = arr
	return nil
}

func (l flexList) String() string {
	return db.JoinList(l)
}

type bookRequest struct {
	ISBN        string           `json:"isbn" validate:"required,max=32"`
	Title       string           `json:"title" validate:"required,max=255"`
	Author      flexList         `json:"author"`
	Genre       flexList         `json:"genre"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	ImageURL    string           `json:"image_url"`
	Description string           `json:"description"`
}

func (req *bookRequest) toBook(username string) *db.Book {
	return &db.Book{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author.String(),
		Genre:       req.Genre.String(),
		Price:       *req.Price,
		ImageURL:    req.ImageURL,
		Description: req.Description,
		Username:    username,
	}
}

type updateBookRequest struct {
	Title       string           `json:"title" validate:"required,max=255"`
	Author      flexList         `json:"author"`
	Genre       flexList         `json:"genre"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	ImageURL    string           `json:"image_url"`
	Description string           `json:"description"`
}

type bookResponse struct {
	ID          uint      `json:"id"`
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre"`
	Price       string    `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	Description string    `json:"description,omitempty"`
	Username    string    `json:"username,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newBookResponse(b *db.Book) bookResponse {
	return bookResponse{
		ID:          b.ID,
		ISBN:        b.ISBN,
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Price:       b.Price.StringFixed(2),
		ImageURL:    b.ImageURL,
		Description: b.Description,
		Username:    b.Username,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func newBookResponses(books []*db.Book) []bookResponse {
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, newBookResponse(b))
	}
	return out
}

type orderItemResponse struct {
	BookID    uint   `json:"bookId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type orderResponse struct {
	ID        uint                `json:"id"`
	UserID    uint                `json:"user_id"`
	Total     string              `json:"total"`
	Items     []orderItemResponse `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
}

func newOrderResponse(o *db.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total.StringFixed(2),
		Items:     items,
		CreatedAt: o.CreatedAt,
	}
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *db.User  `json:"user"`
}
