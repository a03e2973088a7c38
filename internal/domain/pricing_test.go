package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Опорный сценарий: товар за 100.00, qty 2, доставка 150.00, налог 15% ->
// subtotal 200.00, налог 30.00, итого 380.00 (все суммы в минимальных единицах).
func TestPricingTotals_ReferenceScenario(t *testing.T) {
	pricing := domain.Pricing{ShippingMinor: 15000, TaxRateBasisPoints: 1500}

	totals := pricing.Totals([]domain.OrderLineItem{
		{ProductID: "product-1", Qty: 2, PriceAtPurchaseMinor: 10000},
	})

	if totals.SubtotalMinor != 20000 {
		t.Errorf("subtotal = %d, want 20000", totals.SubtotalMinor)
	}
	if totals.ShippingMinor != 15000 {
		t.Errorf("shipping = %d, want 15000", totals.ShippingMinor)
	}
	if totals.TaxMinor != 3000 {
		t.Errorf("tax = %d, want 3000", totals.TaxMinor)
	}
	if totals.TotalMinor != 38000 {
		t.Errorf("total = %d, want 38000", totals.TotalMinor)
	}
}

func TestPricingTotals_TaxRoundsDown(t *testing.T) {
	pricing := domain.Pricing{ShippingMinor: 0, TaxRateBasisPoints: 1500}

	// 15% от 99 = 14.85, целочисленное деление отбрасывает дробь.
	totals := pricing.Totals([]domain.OrderLineItem{
		{ProductID: "product-1", Qty: 1, PriceAtPurchaseMinor: 99},
	})

	if totals.TaxMinor != 14 {
		t.Errorf("tax = %d, want 14", totals.TaxMinor)
	}
	if totals.TotalMinor != 113 {
		t.Errorf("total = %d, want 113", totals.TotalMinor)
	}
}

func TestPricingTotals_MultipleItems(t *testing.T) {
	pricing := domain.DefaultPricing()

	totals := pricing.Totals([]domain.OrderLineItem{
		{ProductID: "product-1", Qty: 3, PriceAtPurchaseMinor: 2500},
		{ProductID: "product-2", Qty: 1, PriceAtPurchaseMinor: 12500},
	})

	if totals.SubtotalMinor != 20000 {
		t.Errorf("subtotal = %d, want 20000", totals.SubtotalMinor)
	}
	if totals.TotalMinor != totals.SubtotalMinor+totals.ShippingMinor+totals.TaxMinor {
		t.Errorf("total %d is not subtotal+shipping+tax", totals.TotalMinor)
	}
}

func TestPricingTotals_NoItems(t *testing.T) {
	pricing := domain.DefaultPricing()
	totals := pricing.Totals(nil)

	if totals.SubtotalMinor != 0 || totals.TaxMinor != 0 {
		t.Errorf("empty order must have zero subtotal and tax, got %+v", totals)
	}
	if totals.TotalMinor != pricing.ShippingMinor {
		t.Errorf("total = %d, want shipping only %d", totals.TotalMinor, pricing.ShippingMinor)
	}
}
