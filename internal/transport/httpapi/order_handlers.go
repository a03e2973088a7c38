package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const defaultOrdersLimit = 50

// OrderHandlers обслуживает операции с заказами и возвратами.
type OrderHandlers struct {
	checkout checkoutsvc.Service
	logger   *log.Entry
}

// NewOrderHandlers создаёт HTTP-обработчики заказов.
func NewOrderHandlers(checkout checkoutsvc.Service, logger *log.Entry) *OrderHandlers {
	if logger == nil {
		logger = log.WithField("component", "order-handlers")
	}
	return &OrderHandlers{checkout: checkout, logger: logger}
}

type addressPayload struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type placeOrderPayload struct {
	ShippingAddress addressPayload `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
}

type orderItemResponse struct {
	ProductID            string `json:"product_id"`
	Name                 string `json:"name"`
	Qty                  int32  `json:"qty"`
	PriceAtPurchaseMinor int64  `json:"price_at_purchase_minor"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	Currency        string              `json:"currency"`
	SubtotalMinor   int64               `json:"subtotal_minor"`
	ShippingMinor   int64               `json:"shipping_minor"`
	TaxMinor        int64               `json:"tax_minor"`
	TotalMinor      int64               `json:"total_minor"`
	Items           []orderItemResponse `json:"items"`
	ShippingAddress addressPayload      `json:"shipping_address"`
	PaymentMethod   string              `json:"payment_method"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type refundResponse struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	ApproverID  string    `json:"approver_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type orderEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:            item.ProductID,
			Name:                 item.Name,
			Qty:                  item.Qty,
			PriceAtPurchaseMinor: item.PriceAtPurchaseMinor,
		})
	}
	return orderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		Currency:      order.Currency,
		SubtotalMinor: order.SubtotalMinor,
		ShippingMinor: order.ShippingMinor,
		TaxMinor:      order.TaxMinor,
		TotalMinor:    order.TotalMinor,
		Items:         items,
		ShippingAddress: addressPayload{
			Line1:      order.ShippingAddress.Line1,
			City:       order.ShippingAddress.City,
			Region:     order.ShippingAddress.Region,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod:  order.PaymentMethod,
		TrackingNumber: order.TrackingNumber,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

func toRefundResponse(refund domain.Refund) refundResponse {
	return refundResponse{
		ID:          refund.ID,
		OrderID:     refund.OrderID,
		UserID:      refund.UserID,
		Reason:      refund.Reason,
		Status:      string(refund.Status),
		ApproverID:  refund.ApproverID,
		ProcessedAt: refund.ProcessedAt,
		CreatedAt:   refund.CreatedAt,
	}
}

// Place размещает заказ из текущей корзины пользователя.
func (h *OrderHandlers) Place(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	var payload placeOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), claims.UserID, checkoutsvc.PlaceOrderRequest{
		ShippingAddress: domain.Address{
			Line1:      payload.ShippingAddress.Line1,
			City:       payload.ShippingAddress.City,
			Region:     payload.ShippingAddress.Region,
			PostalCode: payload.ShippingAddress.PostalCode,
			Country:    payload.ShippingAddress.Country,
		},
		PaymentMethod: payload.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get возвращает заказ по идентификатору.
func (h *OrderHandlers) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	order, err := h.checkout.GetOrder(orderID, claims.UserID, claims.IsAdmin())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListMy возвращает заказы текущего пользователя, новые первыми.
func (h *OrderHandlers) ListMy(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	orders, err := h.checkout.ListOrders(claims.UserID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events возвращает журнал событий заказа.
func (h *OrderHandlers) Events(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	events, err := h.checkout.OrderEvents(orderID, claims.UserID, claims.IsAdmin())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]orderEventResponse, 0, len(events))
	for _, evt := range events {
		resp = append(resp, orderEventResponse{Type: evt.Type, Reason: evt.Reason, Occurred: evt.Occurred})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel отменяет заказ в статусе pending.
func (h *OrderHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	var payload struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	order, err := h.checkout.Cancel(orderID, claims.UserID, claims.IsAdmin(), payload.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Pay проводит оплату заказа.
func (h *OrderHandlers) Pay(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	order, err := h.checkout.Pay(orderID, claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// RequestRefund регистрирует запрос на возврат доставленного заказа.
func (h *OrderHandlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	refund, err := h.checkout.RequestRefund(orderID, claims.UserID, payload.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundResponse(refund))
}

// UpdateStatus переводит заказ в новый статус (админский маршрут).
func (h *OrderHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]

	var payload struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.checkout.UpdateStatus(orderID, domain.OrderStatus(payload.Status), payload.TrackingNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ResolveRefund утверждает или отклоняет запрос на возврат (админский маршрут).
func (h *OrderHandlers) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	orderID := mux.Vars(r)["orderID"]

	var payload struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	refund, err := h.checkout.ResolveRefund(orderID, claims.UserID, payload.Approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundResponse(refund))
}
