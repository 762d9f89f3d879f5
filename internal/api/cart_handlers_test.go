package api

import (
	"fmt"
	"math"
	"net/http"
	"testing"

	"github.com/bookstore/services/storefront/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(id string) []string {
	return []string{cartSessionHeader, id}
}

func TestCartRequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/cart", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cart", nil, bearer("bad")...)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAddToCartAccumulatesQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 7, "quantity": 1}, session("s1")...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 7, "quantity": 2}, session("s1")...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []cart.Item{{BookID: 7, Quantity: 3}}, decodeBody[[]cart.Item](t, rec))

	rec = env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 8}, session("s1")...)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cart", nil, session("s1")...)
	assert.Equal(t, []cart.Item{{BookID: 7, Quantity: 3}, {BookID: 8, Quantity: 1}}, decodeBody[[]cart.Item](t, rec))

	rec = env.do(t, http.MethodGet, "/api/cart", nil, session("s2")...)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAddToCartValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []interface{}{
		map[string]interface{}{"quantity": 1},
		map[string]interface{}{"bookId": 1, "quantity": 0},
		map[string]interface{}{"bookId": 1, "quantity": -4},
		map[string]interface{}{"bookId": -1},
		"",
	} {
		rec := env.do(t, http.MethodPost, "/api/cart", body, session("s1")...)
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprint(body))
	}
}

func TestAddToCartCapsLineQuantity(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)
	_, token := env.registerAndLogin(t, "alice")

	huge := map[string]interface{}{"bookId": 1, "quantity": int64(math.MaxInt64)}
	rec := env.do(t, http.MethodPost, "/api/cart", huge, bearer(token)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 1, "quantity": cart.MaxQuantity}, bearer(token)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 1, "quantity": 1}, bearer(token)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/order", nil, bearer(token)...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "39990.00", order.Total)
	require.Len(t, order.Items, 1)
	assert.Equal(t, cart.MaxQuantity, order.Items[0].Quantity)
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 1}, session("s1")...)
	rec := env.do(t, http.MethodDelete, "/api/cart", nil, session("s1")...)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/cart", nil, session("s1")...)
	assert.Empty(t, decodeBody[[]cart.Item](t, rec))
}

func TestPlaceOrderEmptiesCart(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)
	userID, token := env.registerAndLogin(t, "alice")

	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 1, "quantity": 2}, bearer(token)...)
	// 999 is not in the catalog and is priced at zero.
	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 999}, bearer(token)...)

	rec := env.do(t, http.MethodPost, "/api/order", nil, bearer(token)...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	order := decodeBody[orderResponse](t, rec)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, "79.98", order.Total)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "39.99", order.Items[0].UnitPrice)
	assert.Equal(t, "0.00", order.Items[1].UnitPrice)

	rec = env.do(t, http.MethodGet, "/api/cart", nil, bearer(token)...)
	assert.Empty(t, decodeBody[[]cart.Item](t, rec))

	rec = env.do(t, http.MethodGet, "/api/orders", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decodeBody[[]orderResponse](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)

	env.srv.WaitForEvents()
	assert.Equal(t, []string{"order.created:79.98"}, env.publisher.Events())
}

func TestPlaceOrderFromSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)
	userID, _ := env.registerAndLogin(t, "alice")

	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 3, "quantity": 1}, session("s1")...)

	rec := env.do(t, http.MethodPost, "/api/order", map[string]interface{}{"userId": 999}, session("s1")...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user does not exist", errorOf(t, rec))

	rec = env.do(t, http.MethodGet, "/api/cart", nil, session("s1")...)
	assert.Len(t, decodeBody[[]cart.Item](t, rec), 1, "a failed order keeps the cart")

	rec = env.do(t, http.MethodPost, "/api/order", map[string]interface{}{}, session("s1")...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/order", map[string]interface{}{"userId": userID}, session("s1")...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "12.50", decodeBody[orderResponse](t, rec).Total)

	rec = env.do(t, http.MethodGet, "/api/cart", nil, session("s1")...)
	assert.Empty(t, decodeBody[[]cart.Item](t, rec))
}

func TestPlaceOrderWithEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAndLogin(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/order", nil, bearer(token)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart is empty", errorOf(t, rec))
}

func TestPlaceOrderForAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooks(t)
	bobID, _ := env.registerAndLogin(t, "bob")
	_, aliceToken := env.registerAndLogin(t, "alice")
	_, adminToken := env.registerAndLogin(t, "admin")

	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 2}, bearer(aliceToken)...)
	rec := env.do(t, http.MethodPost, "/api/order", map[string]interface{}{"userId": bobID}, bearer(aliceToken)...)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.do(t, http.MethodPost, "/api/cart", map[string]interface{}{"bookId": 2}, bearer(adminToken)...)
	rec = env.do(t, http.MethodPost, "/api/order", map[string]interface{}{"userId": bobID}, bearer(adminToken)...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, bobID, decodeBody[orderResponse](t, rec).UserID)
}

func TestListOrdersRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
