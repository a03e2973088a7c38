package domain

import "context"

// ProductRepository описывает требования к хранилищу товаров.
// Декремент остатка намеренно отсутствует: он доступен только внутри
// checkout-транзакции (CheckoutTx.ReserveStock).
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ошибку, если ID уже занят.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// Restock увеличивает остаток товара (поступление или компенсация отмены).
	Restock(id string, qty int32) error
}

// CartRepository описывает требования к хранилищу корзин.
type CartRepository interface {
	// GetByUser возвращает корзину пользователя или ErrCartNotFound.
	GetByUser(userID string) (Cart, error)
	// GetOrCreate возвращает корзину пользователя, лениво создавая пустую.
	GetOrCreate(userID string) (Cart, error)
	// Save применяет обновления к корзине с учётом optimistic locking.
	Save(cart Cart) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления статуса/трекинга с учётом optimistic locking.
	Save(order Order) error
}

// RefundRepository описывает требования к хранилищу запросов на возврат.
type RefundRepository interface {
	// Create сохраняет запрос; ErrDuplicateRefund, если по заказу он уже есть.
	Create(refund Refund) error
	// GetByOrder возвращает запрос по заказу или ErrRefundNotFound.
	GetByOrder(orderID string) (Refund, error)
	// Save применяет решение администратора к существующему запросу.
	Save(refund Refund) error
}

// CheckoutTx группирует записи, которые обязаны зафиксироваться атомарно
// при размещении заказа: резервирование остатков, создание заказа с
// позициями, очистка корзины и outbox-событие. Частичных эффектов не
// остаётся: ошибка любого шага откатывает все предыдущие.
type CheckoutTx interface {
	// ReserveStock выполняет условный атомарный декремент stock >= qty
	// (проверка и декремент слиты в одну операцию) и возвращает позицию
	// с зафиксированной ценой. При нехватке возвращает *StockShortage.
	ReserveStock(productID string, qty int32) (ReservedItem, error)
	// CreateOrder сохраняет заказ и его позиции.
	CreateOrder(order Order) error
	// ClearCart опустошает корзину пользователя, сверяя версию снимка.
	ClearCart(userID string, version int64) error
	// EnqueueEvent кладёт событие в outbox в той же атомарной единице.
	EnqueueEvent(msg OutboxMessage) error
}

// CheckoutStore исполняет fn внутри одной атомарной единицы с ограничением
// по времени через ctx. Возврат ошибки из fn (или истечение ctx) гарантирует
// откат всех эффектов, выполненных через CheckoutTx, — для хранилищ без
// мультидокументных транзакций это компенсирующие действия.
type CheckoutStore interface {
	RunCheckout(ctx context.Context, fn func(tx CheckoutTx) error) error
}
