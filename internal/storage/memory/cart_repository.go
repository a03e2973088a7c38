package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// cartRepositoryInMemory — простая in-memory реализация CartRepository.
// Корзины индексируются по userID: у пользователя ровно одна корзина.
type cartRepositoryInMemory struct {
	mu     sync.RWMutex
	byUser map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() *cartRepositoryInMemory {
	return &cartRepositoryInMemory{
		byUser: make(map[string]domain.Cart),
	}
}

// GetByUser возвращает корзину пользователя или ErrCartNotFound.
func (r *cartRepositoryInMemory) GetByUser(userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.byUser[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

// GetOrCreate возвращает корзину пользователя, лениво создавая пустую.
func (r *cartRepositoryInMemory) GetOrCreate(userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.byUser[userID]
	if !ok {
		now := time.Now().UTC()
		cart = domain.Cart{
			ID:        uuid.NewString(),
			UserID:    userID,
			Items:     nil,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.byUser[userID] = cart
	}
	return cloneCart(cart), nil
}

// Save перезаписывает корзину, проверяя версию (optimistic locking).
func (r *cartRepositoryInMemory) Save(cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[cart.UserID]
	if !ok {
		return domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.ErrCartVersionConflict
	}
	cart.ID = current.ID
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	r.byUser[cart.UserID] = cloneCart(cart)
	return nil
}

// clearForUser опустошает корзину, сверяя версию снимка checkout.
// Возвращает undo-функцию, восстанавливающую прежнее содержимое.
func (r *cartRepositoryInMemory) clearForUser(userID string, version int64) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	if current.Version != version {
		return nil, domain.ErrCartVersionConflict
	}

	previous := cloneCart(current)
	cleared := current
	cleared.Items = nil
	cleared.Version++
	cleared.UpdatedAt = time.Now().UTC()
	r.byUser[userID] = cleared

	undo := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byUser[userID] = previous
	}
	return undo, nil
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Items = append([]domain.CartItem(nil), src.Items...)
	return dst
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
