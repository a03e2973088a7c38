package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CheckoutStore — in-memory реализация атомарной единицы checkout.
// Хранилище не имеет мультидокументных транзакций, поэтому атомарность
// достигается компенсирующими действиями: каждый шаг регистрирует
// undo-функцию, и при ошибке журнал откатывается в обратном порядке.
// Мьютекс сериализует checkout-запросы, что делает условные декременты
// остатков линеаризуемыми.
type CheckoutStore struct {
	mu       sync.Mutex
	products *productRepositoryInMemory
	carts    *cartRepositoryInMemory
	orders   *orderRepositoryInMemory
	outbox   *outboxRepositoryInMemory
}

// NewCheckoutStore связывает in-memory репозитории в единое checkout-хранилище.
func NewCheckoutStore(
	products *productRepositoryInMemory,
	carts *cartRepositoryInMemory,
	orders *orderRepositoryInMemory,
	outbox *outboxRepositoryInMemory,
) *CheckoutStore {
	return &CheckoutStore{
		products: products,
		carts:    carts,
		orders:   orders,
		outbox:   outbox,
	}
}

// RunCheckout исполняет fn как одну атомарную единицу. Возврат ошибки из fn
// или истечение ctx откатывает все зарегистрированные эффекты.
func (s *CheckoutStore) RunCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &checkoutTx{store: s}

	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
		return err
	}

	// Outbox-события буферизуются и попадают в хранилище только при commit:
	// после rollback в outbox не остаётся следов неудавшегося checkout.
	for _, msg := range tx.pendingEvents {
		if _, enqErr := s.outbox.Enqueue(msg); enqErr != nil {
			tx.rollback()
			return enqErr
		}
	}

	return nil
}

// checkoutTx накапливает undo-журнал по мере выполнения шагов.
type checkoutTx struct {
	store         *CheckoutStore
	undo          []func()
	pendingEvents []domain.OutboxMessage
}

func (t *checkoutTx) ReserveStock(productID string, qty int32) (domain.ReservedItem, error) {
	if qty <= 0 {
		return domain.ReservedItem{}, domain.ErrItemQtyInvalid
	}

	item, undo, err := t.store.products.reserve(productID, qty)
	if err != nil {
		return domain.ReservedItem{}, err
	}
	t.undo = append(t.undo, undo)
	return item, nil
}

func (t *checkoutTx) CreateOrder(order domain.Order) error {
	if err := t.store.orders.Create(order); err != nil {
		return err
	}
	orderID := order.ID
	t.undo = append(t.undo, func() {
		t.store.orders.remove(orderID)
	})
	return nil
}

func (t *checkoutTx) ClearCart(userID string, version int64) error {
	undo, err := t.store.carts.clearForUser(userID, version)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}

func (t *checkoutTx) EnqueueEvent(msg domain.OutboxMessage) error {
	t.pendingEvents = append(t.pendingEvents, msg)
	return nil
}

// rollback выполняет компенсирующие действия в обратном порядке.
func (t *checkoutTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.pendingEvents = nil
}

var _ domain.CheckoutStore = (*CheckoutStore)(nil)
var _ domain.CheckoutTx = (*checkoutTx)(nil)
