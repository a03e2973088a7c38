package payment

import "github.com/vladislavdragonenkov/checkout/internal/domain"

// MockService — конфигурируемая заглушка PaymentService для тестов и
// локальной разработки.
type MockService struct {
	ChargeStatus domain.PaymentStatus
	ChargeErr    error
	RefundStatus domain.PaymentStatus
	RefundErr    error

	ChargeCalls int
	RefundCalls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		ChargeStatus: domain.PaymentStatusCaptured,
		RefundStatus: domain.PaymentStatusRefunded,
	}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Charge(orderID string, amountMinor int64, currency string) (domain.PaymentStatus, error) {
	m.ChargeCalls++
	return m.ChargeStatus, m.ChargeErr
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockService) Refund(orderID string, amountMinor int64, currency string) (domain.PaymentStatus, error) {
	m.RefundCalls++
	return m.RefundStatus, m.RefundErr
}

var _ domain.PaymentService = (*MockService)(nil)
