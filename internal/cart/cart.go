// Package cart keeps shopping carts keyed by owner. An owner is a user
// ("user:<id>") or an anonymous session ("session:<id>").
package cart

import (
	"context"
	"errors"
	"strconv"
)

// MaxQuantity caps the quantity of a single cart line.
const MaxQuantity = 1000

var (
	// ErrInvalidItem is returned for a zero book id, or a quantity outside
	// 1..MaxQuantity once added to the existing line
	ErrInvalidItem = errors.New("bookId must be positive and a line holds 1 to 1000 copies")

	// ErrNoOwner is returned when an operation is given an empty owner key
	ErrNoOwner = errors.New("cart owner is required")
)

// Item is one cart line.
type Item struct {
	BookID   uint `json:"bookId"`
	Quantity int  `json:"quantity"`
}

// Store holds one cart per owner. Implementations are safe for concurrent use
// and return lines in the order they were first added.
type Store interface {
	// Add appends item to the owner's cart, or adds its quantity to the
	// existing line for the same book, and returns the resulting cart.
	Add(ctx context.Context, owner string, item Item) ([]Item, error)
	// Items returns the owner's cart; an unknown owner has an empty cart.
	Items(ctx context.Context, owner string) ([]Item, error)
	// Clear empties the owner's cart.
	Clear(ctx context.Context, owner string) error
}

// UserOwner is the cart key of an authenticated user.
func UserOwner(userID uint) string {
	return "user:" + strconv.FormatUint(uint64(userID), 10)
}

// SessionOwner is the cart key of an anonymous session.
func SessionOwner(sessionID string) string {
	return "session:" + sessionID
}

func validate(owner string, item Item) error {
	if owner == "" {
		return ErrNoOwner
	}
	if item.BookID == 0 || item.Quantity <= 0 || item.Quantity > MaxQuantity {
		return ErrInvalidItem
	}
	return nil
}
