package memory

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	order := makeTestOrder("user-1")

	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists on duplicate, got %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalMinor != order.TotalMinor || len(got.Items) != 1 {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestOrderRepository_ListByUserNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		order := makeTestOrder("user-1")
		order.ID = fmt.Sprintf("order-%d", i)
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(order); err != nil {
			t.Fatalf("create %s: %v", order.ID, err)
		}
	}
	other := makeTestOrder("user-2")
	other.ID = "order-other"
	if err := repo.Create(other); err != nil {
		t.Fatalf("create foreign order: %v", err)
	}

	orders, err := repo.ListByUser("user-1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("len = %d, want 3", len(orders))
	}
	if orders[0].ID != "order-4" || orders[2].ID != "order-2" {
		t.Errorf("expected newest first, got %s .. %s", orders[0].ID, orders[2].ID)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := NewOrderRepository()
	order := makeTestOrder("user-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	fresh, _ := repo.Get(order.ID)
	fresh.Status = domain.OrderStatusPaid
	if err := repo.Save(fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := order
	stale.Status = domain.OrderStatusCancelled
	if err := repo.Save(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, _ := repo.Get(order.ID)
	if got.Status != domain.OrderStatusPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
}

func TestRefundRepository_DuplicatePerOrder(t *testing.T) {
	repo := NewRefundRepository()
	now := time.Now().UTC()
	refund := domain.Refund{
		ID:        "refund-1",
		OrderID:   "order-1",
		UserID:    "user-1",
		Reason:    "damaged",
		Status:    domain.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.Create(refund); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := refund
	second.ID = "refund-2"
	if err := repo.Create(second); !errors.Is(err, domain.ErrDuplicateRefund) {
		t.Fatalf("expected ErrDuplicateRefund, got %v", err)
	}

	got, err := repo.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if got.ID != "refund-1" {
		t.Errorf("id = %s, want refund-1", got.ID)
	}
}
