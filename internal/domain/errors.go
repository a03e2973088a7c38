package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one line item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("line item qty must be greater than zero")
	// Ошибка, если зафиксированная цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("line item price must be non-negative")
	// Ошибка несоответствия subtotal и суммы позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match line items sum")
	// Ошибка несоответствия total сумме subtotal+shipping+tax.
	ErrTotalMismatch = errors.New("order total does not match subtotal, shipping and tax")
	// Ошибка отсутствующего адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")

	// ErrCartNotFound возвращается, если у пользователя ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty — precondition failure: заказ из пустой корзины невозможен.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartItemNotFound возвращается при обновлении отсутствующей позиции корзины.
	ErrCartItemNotFound = errors.New("product not found in cart")
	// ErrCartVersionConflict сигнализирует о конкурентном изменении корзины.
	ErrCartVersionConflict = errors.New("cart version conflict")

	// ErrProductNotFound возвращается, если товар не найден или снят с продажи.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductExists возвращается при попытке создать товар с занятым ID.
	ErrProductExists = errors.New("product already exists")
	// ErrInsufficientStock — нехватка остатка при резервировании; детали в InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при попытке повторно создать заказ с тем же ID.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — попытка недопустимого перехода статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrRefundNotFound возвращается, если у заказа нет запроса на возврат.
	ErrRefundNotFound = errors.New("refund not found")
	// ErrDuplicateRefund — на заказ уже существует запрос на возврат.
	ErrDuplicateRefund = errors.New("refund already requested for this order")
	// ErrRefundResolved — возврат уже одобрен или отклонён.
	ErrRefundResolved = errors.New("refund is already resolved")

	// ErrPaymentDeclined — платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentIndeterminate — неопределённый статус платежа у провайдера.
	ErrPaymentIndeterminate = errors.New("payment indeterminate state")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// StockShortage описывает нехватку остатка по одной позиции резервирования.
type StockShortage struct {
	ProductID string
	Requested int32
	Available int32
}

func (s *StockShortage) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		s.ProductID, s.Requested, s.Available)
}

func (s *StockShortage) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InsufficientStockError агрегирует нехватки по всем позициям заказа:
// резервирование выполняется по принципу всё-или-ничего, поэтому вызывающий
// получает полный список проблемных позиций, а не только первую.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for i := range e.Shortages {
		parts = append(parts, e.Shortages[i].Error())
	}
	return strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InvalidTransitionError уточняет, какой именно переход статуса был отклонён.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий заказа или корзины.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}
