package domain

import "time"

// CartItem — одна позиция корзины: ссылка на товар и количество.
type CartItem struct {
	ProductID string
	Qty       int32
}

// Cart принадлежит ровно одному пользователю. Создаётся лениво при первом
// обращении и никогда не удаляется — только опустошается при успешном заказе.
// Version защищает read-modify-write обновления от потерянных изменений
// (optimistic locking, как у заказов).
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEmpty сообщает, есть ли в корзине хотя бы одна позиция.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find возвращает индекс позиции с данным товаром или -1.
func (c *Cart) Find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add увеличивает количество существующей позиции или добавляет новую.
func (c *Cart) Add(productID string, qty int32) {
	if i := c.Find(productID); i >= 0 {
		c.Items[i].Qty += qty
		return
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Qty: qty})
}

// SetQty заменяет количество существующей позиции.
func (c *Cart) SetQty(productID string, qty int32) error {
	i := c.Find(productID)
	if i < 0 {
		return ErrCartItemNotFound
	}
	c.Items[i].Qty = qty
	return nil
}

// Remove убирает позицию из корзины; отсутствие позиции не считается ошибкой.
func (c *Cart) Remove(productID string) {
	if i := c.Find(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Validate проверяет количества всех позиций (qty >= 1).
func (c *Cart) Validate() []error {
	var errs []error

	if c.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	for i := range c.Items {
		if c.Items[i].Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}

	return errs
}

// CartLine — позиция снимка корзины с товаром, развёрнутым до текущего
// состояния каталога (цена/остаток/активность на момент чтения).
type CartLine struct {
	Product Product
	Qty     int32
}

// CartSnapshot — корзина пользователя на момент чтения. Гарантия снимка —
// состояние товара "как при чтении": TOC/TOU-зазор закрывает резервирование,
// а не этот снимок.
type CartSnapshot struct {
	CartID  string
	UserID  string
	Version int64
	Lines   []CartLine
}
