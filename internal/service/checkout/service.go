package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// PlaceOrderRequest содержит данные запроса на размещение заказа.
type PlaceOrderRequest struct {
	ShippingAddress domain.Address
	PaymentMethod   string
}

// Service описывает операции workflow размещения и сопровождения заказа.
type Service interface {
	PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (domain.Order, error)
	GetOrder(orderID, userID string, admin bool) (domain.Order, error)
	ListOrders(userID string, limit int) ([]domain.Order, error)
	OrderEvents(orderID, userID string, admin bool) ([]domain.OrderEvent, error)
	Cancel(orderID, userID string, admin bool, reason string) (domain.Order, error)
	Pay(orderID, userID string) (domain.Order, error)
	ConfirmPayment(orderID string) error
	UpdateStatus(orderID string, status domain.OrderStatus, trackingNumber string) (domain.Order, error)
	RequestRefund(orderID, userID, reason string) (domain.Refund, error)
	ResolveRefund(orderID, approverID string, approve bool) (domain.Refund, error)
}

// service связывает снимок корзины, резервирование остатков, сборку заказа
// и очистку корзины в один атомарный checkout.
type service struct {
	store           domain.CheckoutStore
	products        domain.ProductRepository
	carts           domain.CartRepository
	orders          domain.OrderRepository
	refunds         domain.RefundRepository
	events          domain.EventRepository
	payments        domain.PaymentService
	pricing         domain.Pricing
	restockOnCancel bool
	logger          *log.Entry
	metrics         *metrics.CheckoutMetrics
	outbox          domain.OutboxRepository // события жизненного цикла уходят только через outbox
}

// Options настраивает поведение сервиса.
type Options struct {
	Pricing         domain.Pricing
	RestockOnCancel bool
	Outbox          domain.OutboxRepository
	Logger          *log.Entry
	Metrics         *metrics.CheckoutMetrics
}

// NewService создаёт рабочий экземпляр checkout-сервиса.
func NewService(
	store domain.CheckoutStore,
	products domain.ProductRepository,
	carts domain.CartRepository,
	orders domain.OrderRepository,
	refunds domain.RefundRepository,
	events domain.EventRepository,
	payments domain.PaymentService,
	opts Options,
) Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	pricing := opts.Pricing
	if pricing.TaxRateBasisPoints == 0 && pricing.ShippingMinor == 0 {
		pricing = domain.DefaultPricing()
	}
	return &service{
		store:           store,
		products:        products,
		carts:           carts,
		orders:          orders,
		refunds:         refunds,
		events:          events,
		payments:        payments,
		pricing:         pricing,
		restockOnCancel: opts.RestockOnCancel,
		logger:          logger,
		metrics:         opts.Metrics,
		outbox:          opts.Outbox,
	}
}

// PlaceOrder превращает корзину пользователя в заказ. Резервирование
// остатков, создание заказа, очистка корзины и outbox-событие фиксируются
// одной атомарной единицей: при любой ошибке эффектов не остаётся.
func (s *service) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (domain.Order, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutFinished()
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	if userID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	if req.ShippingAddress.Empty() {
		return domain.Order{}, domain.ErrShippingAddressRequired
	}
	if req.PaymentMethod == "" {
		return domain.Order{}, domain.ErrPaymentMethodRequired
	}

	cart, err := s.carts.GetByUser(userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			s.recordFailure("empty_cart")
			return domain.Order{}, domain.ErrCartEmpty
		}
		return domain.Order{}, err
	}
	if cart.IsEmpty() {
		s.recordFailure("empty_cart")
		return domain.Order{}, domain.ErrCartEmpty
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.store.RunCheckout(ctx, func(tx domain.CheckoutTx) error {
		// Резервируем каждую позицию. Нехватки собираются в агрегированную
		// ошибку: клиент видит весь список проблемных товаров сразу, а
		// транзакция откатывает уже сделанные декременты.
		var shortages []domain.StockShortage
		items := make([]domain.OrderLineItem, 0, len(cart.Items))
		for _, line := range cart.Items {
			reserved, rerr := tx.ReserveStock(line.ProductID, line.Qty)
			if rerr != nil {
				var shortage *domain.StockShortage
				if errors.As(rerr, &shortage) {
					shortages = append(shortages, *shortage)
					continue
				}
				return rerr
			}
			if order.Currency == "" {
				order.Currency = reserved.Currency
			}
			items = append(items, domain.OrderLineItem{
				ID:                   uuid.NewString(),
				ProductID:            reserved.ProductID,
				Name:                 reserved.Name,
				Qty:                  line.Qty,
				PriceAtPurchaseMinor: reserved.PriceMinor,
				CreatedAt:            now,
			})
		}
		if len(shortages) > 0 {
			return &domain.InsufficientStockError{Shortages: shortages}
		}

		order.Items = items
		totals := s.pricing.Totals(items)
		order.SubtotalMinor = totals.SubtotalMinor
		order.ShippingMinor = totals.ShippingMinor
		order.TaxMinor = totals.TaxMinor
		order.TotalMinor = totals.TotalMinor

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}

		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		if err := tx.ClearCart(userID, cart.Version); err != nil {
			return err
		}

		payload, merr := json.Marshal(map[string]interface{}{
			"order_id":    order.ID,
			"user_id":     userID,
			"total_minor": order.TotalMinor,
			"currency":    order.Currency,
			"ts":          now.Format(time.RFC3339Nano),
		})
		if merr != nil {
			return merr
		}
		return tx.EnqueueEvent(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     domain.EventOrderCreated,
			Payload:       payload,
		})
	})
	if err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			if s.metrics != nil {
				s.metrics.RecordStockShortages(len(insufficient.Shortages))
			}
			s.recordFailure("insufficient_stock")
			s.logger.WithFields(log.Fields{
				"user_id":   userID,
				"shortages": len(insufficient.Shortages),
			}).Warn("checkout rejected: insufficient stock")
			return domain.Order{}, err
		}
		if domain.IsVersionConflict(err) {
			s.recordFailure("cart_conflict")
			s.logger.WithField("user_id", userID).Warn("checkout rejected: cart changed concurrently")
			return domain.Order{}, err
		}
		s.recordFailure("internal")
		s.logger.WithError(err).WithField("user_id", userID).Error("checkout failed")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
		s.metrics.RecordOutboxEvent()
	}
	s.appendEvent(order.ID, domain.EventOrderCreated, "")
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     userID,
		"total_minor": order.TotalMinor,
	}).Info("order placed")

	return order, nil
}

// GetOrder возвращает заказ с проверкой владения: чужой заказ для
// не-администратора неотличим от несуществующего.
func (s *service) GetOrder(orderID, userID string, admin bool) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !admin && order.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *service) ListOrders(userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return s.orders.ListByUser(userID, limit)
}

func (s *service) OrderEvents(orderID, userID string, admin bool) ([]domain.OrderEvent, error) {
	if _, err := s.GetOrder(orderID, userID, admin); err != nil {
		return nil, err
	}
	return s.events.List(orderID)
}

// Cancel отменяет заказ. Допустима только отмена из pending: повторная
// отмена, как и отмена оплаченного заказа, возвращает InvalidTransitionError.
func (s *service) Cancel(orderID, userID string, admin bool, reason string) (domain.Order, error) {
	order, err := s.GetOrder(orderID, userID, admin)
	if err != nil {
		return domain.Order{}, err
	}

	if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
		return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusCancelled}
	}

	if err := s.updateStatus(&order, domain.OrderStatusCancelled); err != nil {
		return domain.Order{}, err
	}

	if s.restockOnCancel {
		for _, item := range order.Items {
			if rerr := s.products.Restock(item.ProductID, item.Qty); rerr != nil {
				s.logger.WithError(rerr).WithFields(log.Fields{
					"order_id":   order.ID,
					"product_id": item.ProductID,
				}).Warn("restock after cancel failed")
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.appendEvent(order.ID, domain.EventOrderCancelled, reason)
	s.enqueueOutboxEvent(domain.EventOrderCancelled, &order, map[string]interface{}{
		"reason": reason,
	})
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   reason,
	}).Info("order cancelled")

	return order, nil
}

// Pay инициирует списание через платёжный провайдер и переводит заказ в paid.
func (s *service) Pay(orderID, userID string) (domain.Order, error) {
	order, err := s.GetOrder(orderID, userID, false)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusPaid) {
		return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusPaid}
	}

	status, err := s.payments.Charge(order.ID, order.TotalMinor, order.Currency)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("payment failed")
		return domain.Order{}, err
	}
	if status != domain.PaymentStatusCaptured && status != domain.PaymentStatusAuthorized {
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   status,
		}).Warn("unexpected payment status")
		return domain.Order{}, domain.ErrPaymentDeclined
	}

	if err := s.updateStatus(&order, domain.OrderStatusPaid); err != nil {
		return domain.Order{}, err
	}

	s.appendEvent(order.ID, domain.EventOrderPaid, "")
	s.enqueueOutboxEvent(domain.EventOrderPaid, &order, map[string]interface{}{
		"amount": order.TotalMinor,
	})
	return order, nil
}

// ConfirmPayment переводит заказ pending → paid по подтверждению от
// платёжного шлюза (Kafka consumer). Идемпотентен для уже оплаченного заказа.
func (s *service) ConfirmPayment(orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderStatusPaid {
		s.logger.WithField("order_id", order.ID).Debug("order already paid")
		return nil
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusPaid) {
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusPaid}
	}
	if err := s.updateStatus(&order, domain.OrderStatusPaid); err != nil {
		return err
	}
	s.appendEvent(order.ID, domain.EventOrderPaid, "payment gateway confirmation")
	s.enqueueOutboxEvent(domain.EventOrderPaid, &order, nil)
	return nil
}

// UpdateStatus применяет административный переход статуса и опционально
// проставляет tracking number.
func (s *service) UpdateStatus(orderID string, status domain.OrderStatus, trackingNumber string) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, &domain.InvalidTransitionError{To: status}
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == status && trackingNumber == "" {
		return order, nil
	}
	if order.Status != status && !domain.CanTransition(order.Status, status) {
		return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: status}
	}

	if trackingNumber != "" {
		order.TrackingNumber = trackingNumber
	}
	if err := s.updateStatus(&order, status); err != nil {
		return domain.Order{}, err
	}

	s.appendEvent(order.ID, domain.EventOrderStatusChanged, "")
	if status == domain.OrderStatusShipped || status == domain.OrderStatusDelivered {
		s.enqueueOutboxEvent(domain.EventOrderStatusChanged, &order, map[string]interface{}{
			"tracking_number": order.TrackingNumber,
		})
	}
	return order, nil
}

// RequestRefund регистрирует запрос на возврат. Возврат возможен только
// для доставленного заказа, и не более одного запроса на заказ.
func (s *service) RequestRefund(orderID, userID, reason string) (domain.Refund, error) {
	order, err := s.GetOrder(orderID, userID, false)
	if err != nil {
		return domain.Refund{}, err
	}

	if order.Status != domain.OrderStatusDelivered {
		return domain.Refund{}, &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusDelivered}
	}

	now := time.Now().UTC()
	refund := domain.Refund{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		UserID:    userID,
		Reason:    reason,
		Status:    domain.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := refund.Validate(); len(errs) > 0 {
		return domain.Refund{}, errs[0]
	}

	if err := s.refunds.Create(refund); err != nil {
		if errors.Is(err, domain.ErrDuplicateRefund) {
			s.logger.WithField("order_id", order.ID).Warn("duplicate refund request rejected")
		}
		return domain.Refund{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordRefundRequested()
	}
	s.appendEvent(order.ID, domain.EventRefundRequested, reason)
	s.enqueueOutboxEvent(domain.EventRefundRequested, &order, map[string]interface{}{
		"reason": reason,
	})
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  userID,
	}).Info("refund requested")

	return refund, nil
}

// ResolveRefund применяет решение администратора. Решение окончательное:
// повторное разрешение уже обработанного запроса отклоняется.
func (s *service) ResolveRefund(orderID, approverID string, approve bool) (domain.Refund, error) {
	refund, err := s.refunds.GetByOrder(orderID)
	if err != nil {
		return domain.Refund{}, err
	}
	if refund.Status != domain.RefundStatusPending {
		return domain.Refund{}, domain.ErrRefundResolved
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Refund{}, err
	}

	if approve {
		status, payErr := s.payments.Refund(order.ID, order.TotalMinor, order.Currency)
		if payErr != nil {
			s.logger.WithError(payErr).WithField("order_id", order.ID).Warn("refund payout failed")
			return domain.Refund{}, payErr
		}
		if status != domain.PaymentStatusRefunded {
			s.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"status":   status,
			}).Warn("unexpected refund status")
			return domain.Refund{}, domain.ErrPaymentIndeterminate
		}
		refund.Status = domain.RefundStatusApproved
	} else {
		refund.Status = domain.RefundStatusDenied
	}

	refund.ApproverID = approverID
	refund.ProcessedAt = time.Now().UTC()
	if err := s.refunds.Save(refund); err != nil {
		return domain.Refund{}, err
	}

	s.appendEvent(order.ID, domain.EventRefundResolved, string(refund.Status))
	s.enqueueOutboxEvent(domain.EventRefundResolved, &order, map[string]interface{}{
		"refund_status": string(refund.Status),
		"approver_id":   approverID,
	})
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   refund.Status,
	}).Info("refund resolved")

	return refund, nil
}

func (s *service) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordOrderFailed(reason)
	}
}

// updateStatus меняет статус заказа с optimistic locking и retry при
// version conflict (exponential backoff).
func (s *service) updateStatus(order *domain.Order, newStatus domain.OrderStatus) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		previousStatus := order.Status
		order.Status = newStatus
		order.UpdatedAt = time.Now().UTC()
		prevVersion := order.Version

		if err := s.orders.Save(*order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				s.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"attempt":  attempt + 1,
					"version":  order.Version,
				}).Warn("version conflict detected, retrying")

				fresh, loadErr := s.orders.Get(order.ID)
				if loadErr != nil {
					s.logger.WithError(loadErr).WithField("order_id", order.ID).Error("failed to reload order after conflict")
					return loadErr
				}
				*order = fresh

				// Переход мог стать недопустимым после перезагрузки.
				if order.Status == newStatus {
					return nil
				}
				if !domain.CanTransition(order.Status, newStatus) {
					return &domain.InvalidTransitionError{From: order.Status, To: newStatus}
				}

				delay := baseDelay * time.Duration(1<<uint(attempt))
				time.Sleep(delay)
				continue
			}

			order.Status = previousStatus
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Error("failed to persist status")
			return err
		}

		order.Version = prevVersion + 1
		return nil
	}

	return domain.ErrOrderVersionConflict
}

func (s *service) appendEvent(orderID, eventType, reason string) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.events.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append order event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOrderEvent()
	}
}

// enqueueOutboxEvent кладёт событие жизненного цикла в outbox: публикацией
// в Kafka занимается только outbox-воркер, второго канала доставки нет.
func (s *service) enqueueOutboxEvent(eventType string, order *domain.Order, metadata map[string]interface{}) {
	if s.outbox == nil {
		return
	}

	body := map[string]interface{}{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"status":      string(order.Status),
		"total_minor": order.TotalMinor,
		"currency":    order.Currency,
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("marshal outbox event failed")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("enqueue outbox event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

var _ Service = (*service)(nil)
