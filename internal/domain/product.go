package domain

import "time"

// Product описывает товар каталога в объёме, необходимом workflow заказа.
// Остаток мутируется только резервированием (декремент) и restock (инкремент);
// инвариант: stock никогда не уходит в минус.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64 // цена за единицу в минимальных денежных единицах
	Currency   string
	Stock      int32
	Active     bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет базовые инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}

// ReservedItem — результат успешного резервирования одной позиции.
// PriceMinor зафиксирован самим резервирующим обновлением, а не повторным
// чтением перед сохранением заказа: конкурентная правка цены администратором
// не меняет сумму уже начатого заказа.
type ReservedItem struct {
	ProductID  string
	Name       string
	PriceMinor int64
	Currency   string
	StockLeft  int32
}
