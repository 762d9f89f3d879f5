package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bookstore/services/storefront/internal/cart"
	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/events"
	"github.com/bookstore/services/storefront/internal/repo"
	"go.uber.org/zap"
)

const (
	cartSessionHeader   = "X-Cart-Session"
	maxCartSessionIDLen = 128
)

var errNoCartOwner = errors.New("send a bearer token or an " + cartSessionHeader + " header to use the cart")

// cartOwner resolves whose cart the request addresses: the token's user when
// authenticated, otherwise the anonymous session.
func cartOwner(r *http.Request) (string, error) {
	if claims, ok := claimsFrom(r.Context()); ok {
		return cart.UserOwner(claims.UserID), nil
	}

	session := strings.TrimSpace(r.Header.Get(cartSessionHeader))
	if session == "" {
		return "", errNoCartOwner
	}
	if len(session) > maxCartSessionIDLen {
		return "", errors.New(cartSessionHeader + " is too long")
	}
	return cart.SessionOwner(session), nil
}

type addToCartRequest struct {
	BookID   uint `json:"bookId" validate:"required"`
	Quantity *int `json:"quantity"`
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > cart.MaxQuantity {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must be between 1 and %d", cart.MaxQuantity))
		return
	}

	items, err := s.carts.Add(r.Context(), owner, cart.Item{BookID: req.BookID, Quantity: quantity})
	if err != nil {
		if errors.Is(err, cart.ErrInvalidItem) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, "failed to update cart", err)
		return
	}

	s.metrics.cartAdds.Inc()
	writeJSON(w, http.StatusOK, nonNilItems(items))
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.carts.Items(r.Context(), owner)
	if err != nil {
		s.internalError(w, r, "failed to read cart", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilItems(items))
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.carts.Clear(r.Context(), owner); err != nil {
		s.internalError(w, r, "failed to clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeOrderRequest struct {
	UserID uint `json:"userId"`
}

// handlePlaceOrder prices the caller's cart, stores the order and empties
// the cart. The buyer defaults to the token's user; only admins may order
// on behalf of someone else.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := req.UserID
	if claims, ok := claimsFrom(r.Context()); ok {
		if userID == 0 {
			userID = claims.UserID
		}
		if userID != claims.UserID && claims.Role != db.RoleAdmin {
			writeError(w, http.StatusForbidden, "cannot place an order for another user")
			return
		}
	}
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	items, err := s.carts.Items(r.Context(), owner)
	if err != nil {
		s.internalError(w, r, "failed to read cart", err)
		return
	}
	lines := make([]repo.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, repo.OrderLine{BookID: it.BookID, Quantity: it.Quantity})
	}

	order, err := s.orders.PlaceOrder(r.Context(), userID, lines)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEmptyOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repo.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "user does not exist")
		default:
			s.internalError(w, r, "failed to place order", err)
		}
		return
	}

	if err := s.carts.Clear(r.Context(), owner); err != nil {
		s.log.Error("Failed to clear cart after order",
			zap.String("owner", owner),
			zap.Uint("order_id", order.ID),
			zap.Error(err),
		)
	}

	s.metrics.ordersPlaced.Inc()
	s.publish(r, events.EventTypeOrderCreated, func(ctx context.Context) error {
		return s.publisher.PublishOrderCreated(ctx, order)
	})
	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	orders, err := s.orders.ListOrders(r.Context(), claims.UserID)
	if err != nil {
		s.internalError(w, r, "failed to list orders", err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func nonNilItems(items []cart.Item) []cart.Item {
	if items == nil {
		return []cart.Item{}
	}
	return items
}
