package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// errorResponse — унифицированное тело ошибки API.
type errorResponse struct {
	Error     string            `json:"error"`
	Shortages []shortagePayload `json:"shortages,omitempty"`
}

type shortagePayload struct {
	ProductID string `json:"product_id"`
	Requested int32  `json:"requested"`
	Available int32  `json:"available"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError переводит доменные ошибки в HTTP-статусы.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		shortages := make([]shortagePayload, 0, len(insufficient.Shortages))
		for _, s := range insufficient.Shortages {
			shortages = append(shortages, shortagePayload{
				ProductID: s.ProductID,
				Requested: s.Requested,
				Available: s.Available,
			})
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			Shortages: shortages,
		})
		return
	}

	var shortage *domain.StockShortage
	if errors.As(err, &shortage) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Shortages: []shortagePayload{{
				ProductID: shortage.ProductID,
				Requested: shortage.Requested,
				Available: shortage.Available,
			}},
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrRefundNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrShippingAddressRequired),
		errors.Is(err, domain.ErrPaymentMethodRequired),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateRefund),
		errors.Is(err, domain.ErrRefundResolved),
		errors.Is(err, domain.ErrCartVersionConflict),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
