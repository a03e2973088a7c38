package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	cartsvc "github.com/vladislavdragonenkov/checkout/internal/service/cart"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
)

var testJWTSecret = []byte("test-secret")

type apiEnv struct {
	server   *httptest.Server
	products domain.ProductRepository
	carts    domain.CartRepository
	orders   domain.OrderRepository
	payments *payment.MockService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	entry := logger.WithField("component", "httpapi-test")

	products := memory.NewProductRepository()
	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	refunds := memory.NewRefundRepository()
	events := memory.NewEventRepository()
	outbox := memory.NewOutboxRepository()
	payments := payment.NewMockService()
	store := memory.NewCheckoutStore(products, carts, orders, outbox)

	checkout := checkoutsvc.NewService(store, products, carts, orders, refunds, events, payments, checkoutsvc.Options{
		Pricing:         domain.Pricing{ShippingMinor: 15000, TaxRateBasisPoints: 1500},
		RestockOnCancel: true,
		Logger:          entry,
	})
	cartService := cartsvc.NewService(carts, products, entry)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Carts:       cartService,
		Checkout:    checkout,
		Idempotency: memory.NewIdempotencyRepository(),
		JWTSecret:   testJWTSecret,
		Logger:      entry,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiEnv{
		server:   server,
		products: products,
		carts:    carts,
		orders:   orders,
		payments: payments,
	}
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := &httpapi.Claims{
		UserID: userID,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func (e *apiEnv) seedProduct(t *testing.T, id string, priceMinor int64, stock int32) {
	t.Helper()
	require.NoError(t, e.products.Create(domain.Product{
		ID:         id,
		Name:       "Widget " + id,
		PriceMinor: priceMinor,
		Currency:   "USD",
		Stock:      stock,
		Active:     true,
	}))
}

func (e *apiEnv) seedCart(t *testing.T, userID string, items ...domain.CartItem) {
	t.Helper()
	cart, err := e.carts.GetOrCreate(userID)
	require.NoError(t, err)
	cart.Items = items
	require.NoError(t, e.carts.Save(cart))
}

func placeOrderBody() map[string]interface{} {
	return map[string]interface{}{
		"shipping_address": map[string]string{
			"line1":       "1 Main St",
			"city":        "Springfield",
			"region":      "IL",
			"postal_code": "62701",
			"country":     "US",
		},
		"payment_method": "card",
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/api/cart", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/cart", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic abc")
	resp, err = env.server.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &httpapi.Claims{UserID: "user-1"}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	resp = env.do(t, http.MethodGet, "/api/cart", forged, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/cart", signToken(t, "user-1", "customer"), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminMiddlewareForbidsCustomers(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPatch, "/api/admin/orders/order-1/status", signToken(t, "user-1", "customer"),
		map[string]string{"status": "shipped"}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestCartEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	token := signToken(t, "user-1", "customer")

	resp := env.do(t, http.MethodPost, "/api/cart/items", token, map[string]interface{}{"product_id": "product-1", "qty": 2}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cart struct {
		UserID  string `json:"user_id"`
		Version int64  `json:"version"`
		Items   []struct {
			ProductID string `json:"product_id"`
			Qty       int32  `json:"qty"`
		} `json:"items"`
	}
	decodeBody(t, resp, &cart)
	require.Equal(t, "user-1", cart.UserID)
	require.Len(t, cart.Items, 1)
	require.Equal(t, int32(2), cart.Items[0].Qty)

	// Чтение корзины разворачивает позиции до каталога: имя, цена, итог.
	resp = env.do(t, http.MethodGet, "/api/cart", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot struct {
		UserID        string `json:"user_id"`
		SubtotalMinor int64  `json:"subtotal_minor"`
		Lines         []struct {
			ProductID  string `json:"product_id"`
			Name       string `json:"name"`
			PriceMinor int64  `json:"price_minor"`
			Qty        int32  `json:"qty"`
			LineMinor  int64  `json:"line_minor"`
		} `json:"lines"`
	}
	decodeBody(t, resp, &snapshot)
	require.Equal(t, "user-1", snapshot.UserID)
	require.Len(t, snapshot.Lines, 1)
	require.Equal(t, int64(10000), snapshot.Lines[0].PriceMinor)
	require.Equal(t, int64(20000), snapshot.Lines[0].LineMinor)
	require.Equal(t, int64(20000), snapshot.SubtotalMinor)
	require.NotEmpty(t, snapshot.Lines[0].Name)

	resp = env.do(t, http.MethodPut, "/api/cart/items/product-1", token, map[string]interface{}{"qty": 4}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &cart)
	require.Equal(t, int32(4), cart.Items[0].Qty)

	resp = env.do(t, http.MethodPost, "/api/cart/items", token, map[string]interface{}{"product_id": "product-1", "qty": 10}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/api/cart/items/product-1", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &cart)
	require.Empty(t, cart.Items)

	resp = env.do(t, http.MethodDelete, "/api/cart/items/product-1", token, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceOrderEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})
	token := signToken(t, "user-1", "customer")

	resp := env.do(t, http.MethodPost, "/api/orders", token, placeOrderBody(), map[string]string{"Idempotency-Key": "place-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		SubtotalMinor int64  `json:"subtotal_minor"`
		ShippingMinor int64  `json:"shipping_minor"`
		TaxMinor      int64  `json:"tax_minor"`
		TotalMinor    int64  `json:"total_minor"`
		Items         []struct {
			PriceAtPurchaseMinor int64 `json:"price_at_purchase_minor"`
		} `json:"items"`
	}
	decodeBody(t, resp, &order)
	require.Equal(t, "pending", order.Status)
	require.Equal(t, int64(20000), order.SubtotalMinor)
	require.Equal(t, int64(15000), order.ShippingMinor)
	require.Equal(t, int64(3000), order.TaxMinor)
	require.Equal(t, int64(38000), order.TotalMinor)
	require.Len(t, order.Items, 1)
	require.Equal(t, int64(10000), order.Items[0].PriceAtPurchaseMinor)

	product, err := env.products.Get("product-1")
	require.NoError(t, err)
	require.Equal(t, int32(3), product.Stock)

	cart, err := env.carts.GetOrCreate("user-1")
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestPlaceOrderRequiresIdempotencyKey(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 1})

	resp := env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-1", "customer"), placeOrderBody(), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})
	token := signToken(t, "user-1", "customer")
	headers := map[string]string{"Idempotency-Key": "replay-1"}

	resp := env.do(t, http.MethodPost, "/api/orders", token, placeOrderBody(), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &first)

	// Повтор с тем же ключом: закешированный ответ, без второго заказа.
	resp = env.do(t, http.MethodPost, "/api/orders", token, placeOrderBody(), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var second struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &second)
	require.Equal(t, first.ID, second.ID)

	product, err := env.products.Get("product-1")
	require.NoError(t, err)
	require.Equal(t, int32(3), product.Stock)
}

func TestPlaceOrderIdempotencyHashMismatch(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 1})
	token := signToken(t, "user-1", "customer")
	headers := map[string]string{"Idempotency-Key": "mismatch-1"}

	resp := env.do(t, http.MethodPost, "/api/orders", token, placeOrderBody(), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	other := placeOrderBody()
	other["payment_method"] = "paypal"
	resp = env.do(t, http.MethodPost, "/api/orders", token, other, headers)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestPlaceOrderIdempotencyKeyBoundToUser(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})
	env.seedCart(t, "user-2", domain.CartItem{ProductID: "product-1", Qty: 2})
	headers := map[string]string{"Idempotency-Key": "shared-1"}

	resp := env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-1", "customer"), placeOrderBody(), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &first)

	// Чужой ключ с тем же телом не воспроизводит чужой заказ: хеш включает
	// пользователя, поэтому это конфликт, а не replay.
	resp = env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-2", "customer"), placeOrderBody(), headers)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	orders, err := env.orders.ListByUser("user-2", 10)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestPlaceOrderInsufficientStockPayload(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 1)
	env.seedProduct(t, "product-2", 5000, 0)
	env.seedCart(t, "user-1",
		domain.CartItem{ProductID: "product-1", Qty: 3},
		domain.CartItem{ProductID: "product-2", Qty: 2},
	)

	resp := env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-1", "customer"), placeOrderBody(),
		map[string]string{"Idempotency-Key": "shortage-1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var payload struct {
		Error     string `json:"error"`
		Shortages []struct {
			ProductID string `json:"product_id"`
			Requested int32  `json:"requested"`
			Available int32  `json:"available"`
		} `json:"shortages"`
	}
	decodeBody(t, resp, &payload)
	require.Len(t, payload.Shortages, 2)
	require.Contains(t, payload.Error, "product-1")
	require.Contains(t, payload.Error, "product-2")

	// Частичных списаний быть не должно.
	product, err := env.products.Get("product-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), product.Stock)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-1", "customer"), placeOrderBody(),
		map[string]string{"Idempotency-Key": "empty-1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})
	userToken := signToken(t, "user-1", "customer")
	adminToken := signToken(t, "admin-1", "admin")

	resp := env.do(t, http.MethodPost, "/api/orders", userToken, placeOrderBody(), map[string]string{"Idempotency-Key": "life-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &order)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/pay", order.ID), userToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var paid struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &paid)
	require.Equal(t, "paid", paid.Status)

	resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/orders/%s/status", order.ID), adminToken,
		map[string]string{"status": "shipped", "tracking_number": "TRACK-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var shipped struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"tracking_number"`
	}
	decodeBody(t, resp, &shipped)
	require.Equal(t, "shipped", shipped.Status)
	require.Equal(t, "TRACK-1", shipped.TrackingNumber)

	resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/orders/%s/status", order.ID), adminToken,
		map[string]string{"status": "delivered"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/refund", order.ID), userToken,
		map[string]string{"reason": "damaged on arrival"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var refund struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &refund)
	require.Equal(t, "pending", refund.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/admin/refunds/%s/resolve", order.ID), adminToken,
		map[string]bool{"approve": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved struct {
		Status     string `json:"status"`
		ApproverID string `json:"approver_id"`
	}
	decodeBody(t, resp, &resolved)
	require.Equal(t, "approved", resolved.Status)
	require.Equal(t, "admin-1", resolved.ApproverID)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders/%s/events", order.ID), userToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []struct {
		Type string `json:"type"`
	}
	decodeBody(t, resp, &events)
	require.NotEmpty(t, events)
}

func TestCancelEndpointWithoutBody(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})
	token := signToken(t, "user-1", "customer")

	resp := env.do(t, http.MethodPost, "/api/orders", token, placeOrderBody(), map[string]string{"Idempotency-Key": "cancel-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &order)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/cancel", order.ID), token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cancelled struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &cancelled)
	require.Equal(t, "cancelled", cancelled.Status)

	product, err := env.products.Get("product-1")
	require.NoError(t, err)
	require.Equal(t, int32(5), product.Stock)

	// Повторная отмена отклоняется: cancelled → cancelled не является переходом.
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/cancel", order.ID), token, nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetOrderOwnership(t *testing.T) {
	env := newAPIEnv(t)
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 1})

	resp := env.do(t, http.MethodPost, "/api/orders", signToken(t, "user-1", "customer"), placeOrderBody(),
		map[string]string{"Idempotency-Key": "own-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &order)

	// Чужой пользователь не должен отличать чужой заказ от несуществующего.
	resp = env.do(t, http.MethodGet, "/api/orders/"+order.ID, signToken(t, "user-2", "customer"), nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/orders/"+order.ID, signToken(t, "admin-1", "admin"), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestListMyOrdersLimitValidation(t *testing.T) {
	env := newAPIEnv(t)
	token := signToken(t, "user-1", "customer")

	resp := env.do(t, http.MethodGet, "/api/orders/my-orders?limit=abc", token, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/orders/my-orders?limit=-1", token, nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/orders/my-orders", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []json.RawMessage
	decodeBody(t, resp, &orders)
	require.Empty(t, orders)
}
