package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	cartsvc "github.com/vladislavdragonenkov/checkout/internal/service/cart"
)

// CartHandlers обслуживает операции с корзиной текущего пользователя.
type CartHandlers struct {
	carts  cartsvc.Service
	logger *log.Entry
}

// NewCartHandlers создаёт HTTP-обработчики корзины.
func NewCartHandlers(carts cartsvc.Service, logger *log.Entry) *CartHandlers {
	if logger == nil {
		logger = log.WithField("component", "cart-handlers")
	}
	return &CartHandlers{carts: carts, logger: logger}
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type cartResponse struct {
	ID      string            `json:"id"`
	UserID  string            `json:"user_id"`
	Items   []cartItemPayload `json:"items"`
	Version int64             `json:"version"`
}

func toCartResponse(cart domain.Cart) cartResponse {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{ProductID: item.ProductID, Qty: item.Qty})
	}
	return cartResponse{
		ID:      cart.ID,
		UserID:  cart.UserID,
		Items:   items,
		Version: cart.Version,
	}
}

type cartLinePayload struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	Qty        int32  `json:"qty"`
	LineMinor  int64  `json:"line_minor"`
}

type cartSnapshotResponse struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Version       int64             `json:"version"`
	Lines         []cartLinePayload `json:"lines"`
	SubtotalMinor int64             `json:"subtotal_minor"`
}

func toCartSnapshotResponse(snap domain.CartSnapshot) cartSnapshotResponse {
	resp := cartSnapshotResponse{
		ID:      snap.CartID,
		UserID:  snap.UserID,
		Version: snap.Version,
		Lines:   make([]cartLinePayload, 0, len(snap.Lines)),
	}
	for _, line := range snap.Lines {
		lineMinor := int64(line.Qty) * line.Product.PriceMinor
		resp.Lines = append(resp.Lines, cartLinePayload{
			ProductID:  line.Product.ID,
			Name:       line.Product.Name,
			PriceMinor: line.Product.PriceMinor,
			Currency:   line.Product.Currency,
			Qty:        line.Qty,
			LineMinor:  lineMinor,
		})
		resp.SubtotalMinor += lineMinor
	}
	return resp
}

// Get возвращает снимок корзины текущего пользователя: позиции развёрнуты
// до текущего состояния каталога, с ценами и промежуточным итогом.
func (h *CartHandlers) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	// Корзина создаётся лениво: для новой или пустой корзины снимка нет,
	// отдаём пустой ответ вместо ошибки.
	snap, err := h.carts.Snapshot(claims.UserID)
	if errors.Is(err, domain.ErrCartEmpty) || errors.Is(err, domain.ErrCartNotFound) {
		cart, gerr := h.carts.Get(claims.UserID)
		if gerr != nil {
			writeDomainError(w, gerr)
			return
		}
		writeJSON(w, http.StatusOK, cartSnapshotResponse{
			ID:      cart.ID,
			UserID:  cart.UserID,
			Version: cart.Version,
			Lines:   []cartLinePayload{},
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartSnapshotResponse(snap))
}

// AddItem добавляет товар в корзину.
func (h *CartHandlers) AddItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	var payload cartItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	cart, err := h.carts.AddItem(claims.UserID, payload.ProductID, payload.Qty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

// UpdateItem выставляет количество позиции.
func (h *CartHandlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	productID := mux.Vars(r)["productID"]

	var payload struct {
		Qty int32 `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, err := h.carts.UpdateItem(claims.UserID, productID, payload.Qty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}

// RemoveItem удаляет позицию из корзины.
func (h *CartHandlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}
	productID := mux.Vars(r)["productID"]

	cart, err := h.carts.RemoveItem(claims.UserID, productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(cart))
}
