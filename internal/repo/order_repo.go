package repo

import (
	"context"
	"errors"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEmptyOrder is returned when an order has no lines
var ErrEmptyOrder = errors.New("cart is empty")

// OrderLine is one requested book and quantity.
type OrderLine struct {
	BookID   uint
	Quantity int
}

// OrderRepository handles order placement and lookup
type OrderRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(database *db.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:  database,
		log: logger,
	}
}

// PlaceOrder prices lines at current catalog prices and stores the order for
// userID. Books that no longer exist are priced at zero.
func (r *OrderRepository) PlaceOrder(ctx context.Context, userID uint, lines []OrderLine) (*db.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	order := &db.Order{UserID: userID}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users int64
		if err := tx.Model(&db.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			return ErrUserNotFound
		}

		ids := make([]uint, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.BookID)
		}
		books, err := booksByID(tx, ids)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, l := range lines {
			price := decimal.Zero
			if b, ok := books[l.BookID]; ok {
				price = b.Price
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
			order.Items = append(order.Items, db.OrderItem{
				BookID:    l.BookID,
				Quantity:  l.Quantity,
				UnitPrice: price,
			})
		}
		order.Total = total

		return tx.Create(order).Error
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			r.log.Error("Failed to place order", zap.Uint("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Order placed",
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", userID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// ListOrders returns the orders of userID, newest first, with their items.
func (r *OrderRepository) ListOrders(ctx context.Context, userID uint) ([]*db.Order, error) {
	var orders []*db.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		r.log.Error("Failed to list orders", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	return orders, nil
}
