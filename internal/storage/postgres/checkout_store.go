package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// checkoutTimeout ограничивает время жизни checkout-транзакции: зависший
// checkout не должен удерживать блокировки строк products.
const checkoutTimeout = 10 * time.Second

// CheckoutStore — PostgreSQL-реализация атомарной единицы checkout.
// Все шаги исполняются в одной SQL-транзакции: ошибка любого шага
// откатывает резервирования, заказ, очистку корзины и outbox-событие.
type CheckoutStore struct {
	db *sql.DB
}

// NewCheckoutStore создаёт checkout-хранилище поверх подключения Store.
func NewCheckoutStore(store *Store) *CheckoutStore {
	return &CheckoutStore{db: store.DB()}
}

// RunCheckout исполняет fn внутри одной транзакции с ограничением по времени.
func (s *CheckoutStore) RunCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, checkoutTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}

	ct := &checkoutTx{ctx: txCtx, tx: tx}

	if err := fn(ct); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}

	return nil
}

type checkoutTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// ReserveStock выполняет условный декремент остатка одним UPDATE: проверка
// stock >= qty и само списание слиты, поэтому два конкурирующих checkout
// не смогут увести остаток в минус. RETURNING фиксирует цену на момент
// резервирования.
func (t *checkoutTx) ReserveStock(productID string, qty int32) (domain.ReservedItem, error) {
	if qty <= 0 {
		return domain.ReservedItem{}, domain.ErrItemQtyInvalid
	}

	var item domain.ReservedItem
	err := t.tx.QueryRowContext(t.ctx, `
		UPDATE products
		SET stock = stock - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND active
		  AND stock >= $2
		RETURNING id, name, price_minor, currency, stock
	`, productID, qty).Scan(&item.ProductID, &item.Name, &item.PriceMinor, &item.Currency, &item.StockLeft)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ReservedItem{}, fmt.Errorf("reserve stock: %w", err)
	}

	// UPDATE не затронул строку: различаем отсутствие товара и нехватку.
	var (
		available int32
		active    bool
	)
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT stock, active FROM products WHERE id = $1
	`, productID).Scan(&available, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReservedItem{}, domain.ErrProductNotFound
		}
		return domain.ReservedItem{}, fmt.Errorf("inspect product stock: %w", err)
	}
	if !active {
		return domain.ReservedItem{}, domain.ErrProductNotFound
	}

	return domain.ReservedItem{}, &domain.StockShortage{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

func (t *checkoutTx) CreateOrder(order domain.Order) error {
	return insertOrderTx(t.ctx, t.tx, order)
}

// ClearCart опустошает корзину пользователя, сверяя версию снимка.
// Несовпадение версии означает, что корзина изменилась после чтения
// (или её уже очистил конкурирующий checkout).
func (t *checkoutTx) ClearCart(userID string, version int64) error {
	var cartID string
	err := t.tx.QueryRowContext(t.ctx, `
		UPDATE carts
		SET version = version + 1,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND version = $2
		RETURNING id
	`, userID, version).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			exists := false
			checkErr := t.tx.QueryRowContext(t.ctx, `
				SELECT TRUE FROM carts WHERE user_id = $1
			`, userID).Scan(&exists)
			if checkErr != nil {
				if errors.Is(checkErr, sql.ErrNoRows) {
					return domain.ErrCartNotFound
				}
				return fmt.Errorf("check cart exists: %w", checkErr)
			}
			return domain.ErrCartVersionConflict
		}
		return fmt.Errorf("clear cart: %w", err)
	}

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}

	return nil
}

func (t *checkoutTx) EnqueueEvent(msg domain.OutboxMessage) error {
	_, err := enqueueOutboxTx(t.ctx, t.tx, msg)
	return err
}

var _ domain.CheckoutStore = (*CheckoutStore)(nil)
var _ domain.CheckoutTx = (*checkoutTx)(nil)
