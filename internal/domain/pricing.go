package domain

// Pricing хранит конфигурируемые константы стоимости доставки и налога.
// Деньги считаются только в минимальных единицах (int64): суммирование
// float по позициям запрещено из-за накопления ошибок округления.
type Pricing struct {
	// ShippingMinor — фиксированная стоимость доставки в минимальных единицах.
	ShippingMinor int64
	// TaxRateBasisPoints — налоговая ставка в базисных пунктах (1500 = 15%).
	TaxRateBasisPoints int64
}

// DefaultPricing возвращает ставки по умолчанию: доставка 150.00, налог 15%.
func DefaultPricing() Pricing {
	return Pricing{
		ShippingMinor:      15000,
		TaxRateBasisPoints: 1500,
	}
}

// Totals — результат расчёта сумм заказа.
type Totals struct {
	SubtotalMinor int64
	ShippingMinor int64
	TaxMinor      int64
	TotalMinor    int64
}

// Totals считает суммы заказа: subtotal — сумма qty*priceAtPurchase по
// позициям, налог — целочисленно от subtotal с округлением вниз,
// total = subtotal + shipping + tax.
func (p Pricing) Totals(items []OrderLineItem) Totals {
	var subtotal int64
	for i := range items {
		subtotal += int64(items[i].Qty) * items[i].PriceAtPurchaseMinor
	}

	tax := subtotal * p.TaxRateBasisPoints / 10000

	return Totals{
		SubtotalMinor: subtotal,
		ShippingMinor: p.ShippingMinor,
		TaxMinor:      tax,
		TotalMinor:    subtotal + p.ShippingMinor + tax,
	}
}
