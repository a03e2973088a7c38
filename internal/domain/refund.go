package domain

import "time"

// RefundStatus отражает жизненный цикл запроса на возврат.
type RefundStatus string

const (
	// RefundStatusPending — запрос создан и ожидает решения администратора.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusApproved — возврат одобрен администратором.
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusDenied — возврат отклонён администратором.
	RefundStatusDenied RefundStatus = "denied"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s RefundStatus) Valid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusDenied:
		return true
	default:
		return false
	}
}

// Refund — запрос на возврат по доставленному заказу. На заказ допускается
// не более одного запроса; решение администратора не меняет статус заказа
// (заказ остаётся delivered).
type Refund struct {
	ID          string
	OrderID     string
	UserID      string
	Reason      string
	Status      RefundStatus
	ApproverID  string
	ProcessedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет корректность ключевых полей запроса на возврат.
func (r *Refund) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderNotFound)
	}
	if r.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}

	return errs
}
