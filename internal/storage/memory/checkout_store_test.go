package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func seedProduct(t *testing.T, repo *productRepositoryInMemory, id string, stock int32) {
	t.Helper()
	now := time.Now().UTC()
	err := repo.Create(domain.Product{
		ID:         id,
		Name:       "Widget " + id,
		PriceMinor: 10000,
		Currency:   "USD",
		Stock:      stock,
		Active:     true,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func seedCart(t *testing.T, repo *cartRepositoryInMemory, userID string, items ...domain.CartItem) domain.Cart {
	t.Helper()
	cart, err := repo.GetOrCreate(userID)
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	cart.Items = items
	if err := repo.Save(cart); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	cart, err = repo.GetByUser(userID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	return cart
}

func makeTestOrder(userID string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		Currency:      "USD",
		SubtotalMinor: 20000,
		ShippingMinor: 15000,
		TaxMinor:      3000,
		TotalMinor:    38000,
		Items: []domain.OrderLineItem{
			{ID: "item-1", ProductID: "product-1", Name: "Widget product-1", Qty: 2, PriceAtPurchaseMinor: 10000, CreatedAt: now},
		},
		ShippingAddress: domain.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
		PaymentMethod:   "card",
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCheckoutStore_CommitAppliesAllEffects(t *testing.T) {
	products := NewProductRepository()
	carts := NewCartRepository()
	orders := NewOrderRepository()
	outbox := NewOutboxRepository()
	store := NewCheckoutStore(products, carts, orders, outbox)

	seedProduct(t, products, "product-1", 5)
	cart := seedCart(t, carts, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})

	err := store.RunCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		reserved, err := tx.ReserveStock("product-1", 2)
		if err != nil {
			return err
		}
		if reserved.PriceMinor != 10000 {
			t.Errorf("reserved price = %d, want 10000", reserved.PriceMinor)
		}
		if reserved.StockLeft != 3 {
			t.Errorf("stock left = %d, want 3", reserved.StockLeft)
		}
		if err := tx.CreateOrder(makeTestOrder("user-1")); err != nil {
			return err
		}
		if err := tx.ClearCart("user-1", cart.Version); err != nil {
			return err
		}
		return tx.EnqueueEvent(domain.OutboxMessage{
			ID:            "msg-1",
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     domain.EventOrderCreated,
			Payload:       []byte(`{}`),
		})
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	product, err := products.Get("product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 3 {
		t.Errorf("stock = %d, want 3", product.Stock)
	}

	if _, err := orders.Get("order-1"); err != nil {
		t.Errorf("order must exist after commit: %v", err)
	}

	reloaded, err := carts.GetByUser("user-1")
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if !reloaded.IsEmpty() {
		t.Errorf("cart must be empty after commit, got %d items", len(reloaded.Items))
	}

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("outbox pending = %d, want 1", len(pending))
	}
	if pending[0].EventType != domain.EventOrderCreated {
		t.Errorf("event type = %s, want %s", pending[0].EventType, domain.EventOrderCreated)
	}
}

func TestCheckoutStore_RollbackLeavesNoPartialEffects(t *testing.T) {
	products := NewProductRepository()
	carts := NewCartRepository()
	orders := NewOrderRepository()
	outbox := NewOutboxRepository()
	store := NewCheckoutStore(products, carts, orders, outbox)

	seedProduct(t, products, "product-1", 5)
	seedProduct(t, products, "product-2", 1)
	cart := seedCart(t, carts, "user-1",
		domain.CartItem{ProductID: "product-1", Qty: 2},
		domain.CartItem{ProductID: "product-2", Qty: 3},
	)

	err := store.RunCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		if _, err := tx.ReserveStock("product-1", 2); err != nil {
			return err
		}
		if err := tx.CreateOrder(makeTestOrder("user-1")); err != nil {
			return err
		}
		if err := tx.ClearCart("user-1", cart.Version); err != nil {
			return err
		}
		// Вторая позиция не влезает в остаток: вся единица должна откатиться.
		_, err := tx.ReserveStock("product-2", 3)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	product, _ := products.Get("product-1")
	if product.Stock != 5 {
		t.Errorf("product-1 stock = %d, want 5 after rollback", product.Stock)
	}

	if _, err := orders.Get("order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("order must not survive rollback, got err=%v", err)
	}

	reloaded, _ := carts.GetByUser("user-1")
	if len(reloaded.Items) != 2 {
		t.Errorf("cart must keep its items after rollback, got %d", len(reloaded.Items))
	}

	if pending := outbox.AllPending(); len(pending) != 0 {
		t.Errorf("outbox must stay empty after rollback, got %d", len(pending))
	}
}

func TestCheckoutStore_ClearCartVersionConflictAborts(t *testing.T) {
	products := NewProductRepository()
	carts := NewCartRepository()
	orders := NewOrderRepository()
	store := NewCheckoutStore(products, carts, orders, NewOutboxRepository())

	seedProduct(t, products, "product-1", 5)
	cart := seedCart(t, carts, "user-1", domain.CartItem{ProductID: "product-1", Qty: 2})

	err := store.RunCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		if _, err := tx.ReserveStock("product-1", 2); err != nil {
			return err
		}
		return tx.ClearCart("user-1", cart.Version+1)
	})
	if !errors.Is(err, domain.ErrCartVersionConflict) {
		t.Fatalf("expected cart version conflict, got %v", err)
	}

	product, _ := products.Get("product-1")
	if product.Stock != 5 {
		t.Errorf("stock = %d, want 5 after rollback", product.Stock)
	}
}

func TestCheckoutStore_CancelledContext(t *testing.T) {
	products := NewProductRepository()
	store := NewCheckoutStore(products, NewCartRepository(), NewOrderRepository(), NewOutboxRepository())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.RunCheckout(ctx, func(tx domain.CheckoutTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run with a cancelled context")
	}
}

func TestCheckoutStore_ReserveInactiveProduct(t *testing.T) {
	products := NewProductRepository()
	now := time.Now().UTC()
	if err := products.Create(domain.Product{
		ID: "product-1", Name: "Retired", PriceMinor: 100, Currency: "USD",
		Stock: 10, Active: false, Version: 1, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	store := NewCheckoutStore(products, NewCartRepository(), NewOrderRepository(), NewOutboxRepository())

	err := store.RunCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		_, err := tx.ReserveStock("product-1", 1)
		return err
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("inactive product must be treated as not found, got %v", err)
	}
}
