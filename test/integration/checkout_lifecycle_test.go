package integration

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	cartsvc "github.com/vladislavdragonenkov/checkout/internal/service/cart"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

// CheckoutLifecycleTestSuite тестирует полный жизненный цикл заказа:
// корзина → размещение → оплата → доставка → возврат.
type CheckoutLifecycleTestSuite struct {
	suite.Suite
	checkout checkoutsvc.Service
	cart     cartsvc.Service
	products domain.ProductRepository
	carts    domain.CartRepository
	payments *payment.MockService
}

func (suite *CheckoutLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	products := memory.NewProductRepository()
	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	refunds := memory.NewRefundRepository()
	events := memory.NewEventRepository()
	outbox := memory.NewOutboxRepository()
	store := memory.NewCheckoutStore(products, carts, orders, outbox)

	suite.products = products
	suite.carts = carts
	suite.payments = payment.NewMockService()

	suite.cart = cartsvc.NewService(carts, products, logger)
	suite.checkout = checkoutsvc.NewService(store, products, carts, orders, refunds, events, suite.payments, checkoutsvc.Options{
		Pricing:         domain.Pricing{ShippingMinor: 15000, TaxRateBasisPoints: 1500},
		RestockOnCancel: true,
		Logger:          logger,
	})
}

func (suite *CheckoutLifecycleTestSuite) seedProduct(id string, priceMinor int64, stock int32) {
	err := suite.products.Create(domain.Product{
		ID:         id,
		Name:       "Widget " + id,
		PriceMinor: priceMinor,
		Currency:   "USD",
		Stock:      stock,
		Active:     true,
	})
	require.NoError(suite.T(), err)
}

func shippingAddress() domain.Address {
	return domain.Address{
		Line1:      "1 Main St",
		City:       "Springfield",
		Region:     "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

func (suite *CheckoutLifecycleTestSuite) placeOrder(userID string) domain.Order {
	order, err := suite.checkout.PlaceOrder(context.Background(), userID, checkoutsvc.PlaceOrderRequest{
		ShippingAddress: shippingAddress(),
		PaymentMethod:   "card",
	})
	require.NoError(suite.T(), err)
	return order
}

func (suite *CheckoutLifecycleTestSuite) TestSuccessfulCheckoutLifecycle() {
	// 1. Наполняем корзину через сервис корзины
	suite.seedProduct("product-1", 10000, 5)
	_, err := suite.cart.AddItem("user-1", "product-1", 2)
	require.NoError(suite.T(), err)

	// 2. Размещаем заказ
	order := suite.placeOrder("user-1")
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)
	require.Equal(suite.T(), int64(20000), order.SubtotalMinor)
	require.Equal(suite.T(), int64(15000), order.ShippingMinor)
	require.Equal(suite.T(), int64(3000), order.TaxMinor)
	require.Equal(suite.T(), int64(38000), order.TotalMinor)
	require.Len(suite.T(), order.Items, 1)
	require.Equal(suite.T(), int64(10000), order.Items[0].PriceAtPurchaseMinor)

	// Остаток зарезервирован, корзина очищена
	product, err := suite.products.Get("product-1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(3), product.Stock)

	cart, err := suite.cart.Get("user-1")
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), cart.Items)

	// 3. Оплата
	paid, err := suite.checkout.Pay(order.ID, "user-1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPaid, paid.Status)
	require.Equal(suite.T(), 1, suite.payments.ChargeCalls)

	// 4. Отгрузка и доставка
	shipped, err := suite.checkout.UpdateStatus(order.ID, domain.OrderStatusShipped, "TRACK-123")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "TRACK-123", shipped.TrackingNumber)

	delivered, err := suite.checkout.UpdateStatus(order.ID, domain.OrderStatusDelivered, "")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusDelivered, delivered.Status)

	// 5. Возврат по доставленному заказу
	refund, err := suite.checkout.RequestRefund(order.ID, "user-1", "item arrived damaged")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusPending, refund.Status)

	resolved, err := suite.checkout.ResolveRefund(order.ID, "admin-1", true)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.RefundStatusApproved, resolved.Status)
	require.Equal(suite.T(), 1, suite.payments.RefundCalls)

	// 6. Аудит: каждый переход оставил событие
	events, err := suite.checkout.OrderEvents(order.ID, "user-1", false)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(events), 4)
}

func (suite *CheckoutLifecycleTestSuite) TestCancellationRestoresStock() {
	suite.seedProduct("product-1", 10000, 5)
	_, err := suite.cart.AddItem("user-1", "product-1", 2)
	require.NoError(suite.T(), err)

	order := suite.placeOrder("user-1")

	cancelled, err := suite.checkout.Cancel(order.ID, "user-1", false, "changed my mind")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCancelled, cancelled.Status)

	// Резерв возвращён на склад
	product, err := suite.products.Get("product-1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(5), product.Stock)

	// Деньги не списывались, возвращать нечего
	require.Equal(suite.T(), 0, suite.payments.ChargeCalls)
	require.Equal(suite.T(), 0, suite.payments.RefundCalls)
}

func (suite *CheckoutLifecycleTestSuite) TestInsufficientStockKeepsCartAndStock() {
	suite.seedProduct("product-1", 10000, 1)
	suite.seedProduct("product-2", 5000, 0)

	// Сервис корзины проверяет остаток при добавлении, поэтому позиции
	// кладём напрямую: имитируем сток, распроданный после наполнения корзины.
	cart, err := suite.carts.GetOrCreate("user-1")
	require.NoError(suite.T(), err)
	cart.Items = []domain.CartItem{
		{ProductID: "product-1", Qty: 3},
		{ProductID: "product-2", Qty: 1},
	}
	require.NoError(suite.T(), suite.carts.Save(cart))

	_, err = suite.checkout.PlaceOrder(context.Background(), "user-1", checkoutsvc.PlaceOrderRequest{
		ShippingAddress: shippingAddress(),
		PaymentMethod:   "card",
	})
	require.Error(suite.T(), err)

	var stockErr *domain.InsufficientStockError
	require.True(suite.T(), errors.As(err, &stockErr))
	require.Len(suite.T(), stockErr.Shortages, 2)

	// Всё-или-ничего: остатки и корзина не тронуты
	product, err := suite.products.Get("product-1")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(1), product.Stock)

	kept, err := suite.cart.Get("user-1")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), kept.Items, 2)
}

func TestCheckoutLifecycle(t *testing.T) {
	suite.Run(t, new(CheckoutLifecycleTestSuite))
}
