package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewProductRepository() *productRepositoryInMemory {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductExists
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.items[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Restock увеличивает остаток товара.
func (r *productRepositoryInMemory) Restock(id string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += qty
	product.Version++
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return nil
}

// reserve выполняет условный декремент остатка. Проверка и декремент идут
// под одним мьютексом, поэтому эффект неделим. Возвращает undo-функцию,
// восстанавливающую остаток при откате checkout.
func (r *productRepositoryInMemory) reserve(id string, qty int32) (domain.ReservedItem, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok || !product.Active {
		return domain.ReservedItem{}, nil, domain.ErrProductNotFound
	}
	if product.Stock < qty {
		return domain.ReservedItem{}, nil, &domain.StockShortage{
			ProductID: id,
			Requested: qty,
			Available: product.Stock,
		}
	}

	product.Stock -= qty
	product.Version++
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product

	undo := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		restored, ok := r.items[id]
		if !ok {
			return
		}
		restored.Stock += qty
		restored.Version++
		restored.UpdatedAt = time.Now().UTC()
		r.items[id] = restored
	}

	item := domain.ReservedItem{
		ProductID:  product.ID,
		Name:       product.Name,
		PriceMinor: product.PriceMinor,
		Currency:   product.Currency,
		StockLeft:  product.Stock,
	}
	return item, undo, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
