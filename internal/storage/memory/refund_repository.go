package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// refundRepositoryInMemory — простая in-memory реализация RefundRepository.
// Индекс по orderID поддерживает инвариант "один refund-запрос на заказ".
type refundRepositoryInMemory struct {
	mu      sync.RWMutex
	byOrder map[string]domain.Refund
}

// NewRefundRepository возвращает in-memory репозиторий refund-запросов.
func NewRefundRepository() *refundRepositoryInMemory {
	return &refundRepositoryInMemory{
		byOrder: make(map[string]domain.Refund),
	}
}

// Create сохраняет запрос; ErrDuplicateRefund, если по заказу он уже есть.
func (r *refundRepositoryInMemory) Create(refund domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[refund.OrderID]; exists {
		return domain.ErrDuplicateRefund
	}
	now := time.Now().UTC()
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}
	refund.UpdatedAt = now
	r.byOrder[refund.OrderID] = refund
	return nil
}

// GetByOrder возвращает запрос по заказу или ErrRefundNotFound.
func (r *refundRepositoryInMemory) GetByOrder(orderID string) (domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refund, ok := r.byOrder[orderID]
	if !ok {
		return domain.Refund{}, domain.ErrRefundNotFound
	}
	return refund, nil
}

// Save применяет решение администратора к существующему запросу.
func (r *refundRepositoryInMemory) Save(refund domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrder[refund.OrderID]; !ok {
		return domain.ErrRefundNotFound
	}
	refund.UpdatedAt = time.Now().UTC()
	r.byOrder[refund.OrderID] = refund
	return nil
}

var _ domain.RefundRepository = (*refundRepositoryInMemory)(nil)
