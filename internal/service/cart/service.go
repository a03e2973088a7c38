package cart

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Service описывает операции над корзиной пользователя.
type Service interface {
	Get(userID string) (domain.Cart, error)
	Snapshot(userID string) (domain.CartSnapshot, error)
	AddItem(userID, productID string, qty int32) (domain.Cart, error)
	UpdateItem(userID, productID string, qty int32) (domain.Cart, error)
	RemoveItem(userID, productID string) (domain.Cart, error)
}

type service struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, products domain.ProductRepository, logger *log.Entry) Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &service{
		carts:    carts,
		products: products,
		logger:   logger,
	}
}

// Get возвращает корзину пользователя, лениво создавая пустую.
func (s *service) Get(userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}
	return s.carts.GetOrCreate(userID)
}

// Snapshot строит снимок корзины с актуальными данными товаров.
// Снимок несёт версию корзины: checkout сверит её при очистке.
func (s *service) Snapshot(userID string) (domain.CartSnapshot, error) {
	cart, err := s.carts.GetByUser(userID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	if cart.IsEmpty() {
		return domain.CartSnapshot{}, domain.ErrCartEmpty
	}

	lines := make([]domain.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, perr := s.products.Get(item.ProductID)
		if perr != nil {
			return domain.CartSnapshot{}, perr
		}
		lines = append(lines, domain.CartLine{Product: product, Qty: item.Qty})
	}

	return domain.CartSnapshot{
		CartID:  cart.ID,
		UserID:  cart.UserID,
		Version: cart.Version,
		Lines:   lines,
	}, nil
}

// AddItem добавляет товар в корзину. Количество в корзине не может
// превысить текущий остаток — это ранняя проверка, итоговую даёт
// резервирование при checkout.
func (s *service) AddItem(userID, productID string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrItemQtyInvalid
	}

	product, err := s.products.Get(productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !product.Active {
		return domain.Cart{}, domain.ErrProductNotFound
	}

	return s.mutate(userID, func(cart *domain.Cart) error {
		total := qty
		if i := cart.Find(productID); i >= 0 {
			total += cart.Items[i].Qty
		}
		if total > product.Stock {
			return &domain.StockShortage{
				ProductID: productID,
				Requested: total,
				Available: product.Stock,
			}
		}
		cart.Add(productID, qty)
		return nil
	})
}

// UpdateItem выставляет количество существующей позиции.
func (s *service) UpdateItem(userID, productID string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrItemQtyInvalid
	}

	product, err := s.products.Get(productID)
	if err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(userID, func(cart *domain.Cart) error {
		if qty > product.Stock {
			return &domain.StockShortage{
				ProductID: productID,
				Requested: qty,
				Available: product.Stock,
			}
		}
		return cart.SetQty(productID, qty)
	})
}

// RemoveItem удаляет позицию из корзины.
func (s *service) RemoveItem(userID, productID string) (domain.Cart, error) {
	return s.mutate(userID, func(cart *domain.Cart) error {
		if cart.Find(productID) < 0 {
			return domain.ErrCartItemNotFound
		}
		cart.Remove(productID)
		return nil
	})
}

// mutate применяет изменение к корзине с retry при version conflict:
// конкурирующие правки одной корзины просто повторяются на свежей версии.
func (s *service) mutate(userID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		cart, err := s.carts.GetOrCreate(userID)
		if err != nil {
			return domain.Cart{}, err
		}

		if err := fn(&cart); err != nil {
			return domain.Cart{}, err
		}

		if err := s.carts.Save(cart); err != nil {
			if errors.Is(err, domain.ErrCartVersionConflict) && attempt < maxRetries-1 {
				s.logger.WithFields(log.Fields{
					"user_id": userID,
					"attempt": attempt + 1,
				}).Warn("cart version conflict, retrying")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Cart{}, err
		}

		return s.carts.GetByUser(userID)
	}

	return domain.Cart{}, domain.ErrCartVersionConflict
}

var _ Service = (*service)(nil)
