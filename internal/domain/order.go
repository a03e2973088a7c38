package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен; терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до оплаты; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// statusRank задаёт порядок "вперёд по конвейеру" для защиты от регрессий.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusPaid:      1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, завершён ли жизненный цикл заказа.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition проверяет допустимость перехода from -> to.
// Отмена разрешена только из pending; остальные переходы — строго вперёд
// по конвейеру pending -> paid -> shipped -> delivered. Повтор того же
// статуса и любой откат назад отклоняются.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if to == OrderStatusCancelled {
		return from == OrderStatusPending
	}
	if from == OrderStatusCancelled {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// OrderLineItem — неизменяемая позиция заказа. PriceAtPurchaseMinor —
// замороженная копия цены товара на момент резервирования: последующие
// правки каталога не влияют на исторический total заказа.
type OrderLineItem struct {
	ID                   string
	ProductID            string
	Name                 string
	Qty                  int32
	PriceAtPurchaseMinor int64
	CreatedAt            time.Time
}

// Address — снимок адреса доставки, сохраняемый вместе с заказом.
type Address struct {
	Line1      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Empty сообщает, заполнено ли в адресе хоть одно поле.
func (a Address) Empty() bool {
	return a == Address{}
}

// Order агрегирует состояние заказа и его позиции. Создаётся атомарно вместе
// с позициями; после создания мутируют только Status и TrackingNumber.
// Заказ никогда не удаляется: отмена и возврат — переходы статуса.
type Order struct {
	ID              string
	UserID          string
	Status          OrderStatus
	Currency        string
	SubtotalMinor   int64
	ShippingMinor   int64
	TaxMinor        int64
	TotalMinor      int64
	Items           []OrderLineItem
	ShippingAddress Address
	PaymentMethod   string
	TrackingNumber  string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.SubtotalMinor < 0 || o.ShippingMinor < 0 || o.TaxMinor < 0 || o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.ShippingAddress.Empty() {
		errs = append(errs, ErrShippingAddressRequired)
	}
	if o.PaymentMethod == "" {
		errs = append(errs, ErrPaymentMethodRequired)
	}

	// Сверяем subtotal с суммой позиций: qty * priceAtPurchase.
	var calc int64
	for i := range o.Items {
		item := &o.Items[i]
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceAtPurchaseMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceAtPurchaseMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.SubtotalMinor+o.ShippingMinor+o.TaxMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderEvent описывает событие в жизненном цикле заказа (аудит статусов).
type OrderEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Типы событий жизненного цикла заказа.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderPaid          = "OrderPaid"
	EventRefundRequested    = "RefundRequested"
	EventRefundResolved     = "RefundResolved"
)
