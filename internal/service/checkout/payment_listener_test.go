package checkout_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

func paymentMessage(t *testing.T, eventType kafka.EventType, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(kafka.PaymentEvent{
		EventType:   eventType,
		OrderID:     orderID,
		AmountMinor: 38000,
		Currency:    "USD",
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal payment event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: payload}
}

func TestPaymentEventHandler_CapturedConfirmsOrder(t *testing.T) {
	env := newTestEnv(t, checkoutsvc.Options{})
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 1})

	order, err := env.svc.PlaceOrder(context.Background(), "user-1", placeOrderReq())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	handler := checkoutsvc.NewPaymentEventHandler(env.svc, loggerForTests())

	if err := handler(context.Background(), paymentMessage(t, kafka.EventTypePaymentCaptured, order.ID)); err != nil {
		t.Fatalf("handle captured: %v", err)
	}

	got, _ := env.orders.Get(order.ID)
	if got.Status != domain.OrderStatusPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}

	// Повторная доставка того же события не ломает обработку.
	if err := handler(context.Background(), paymentMessage(t, kafka.EventTypePaymentCaptured, order.ID)); err != nil {
		t.Fatalf("redelivered captured must succeed: %v", err)
	}
}

func TestPaymentEventHandler_UnknownOrderIsRetried(t *testing.T) {
	env := newTestEnv(t, checkoutsvc.Options{})
	handler := checkoutsvc.NewPaymentEventHandler(env.svc, loggerForTests())

	err := handler(context.Background(), paymentMessage(t, kafka.EventTypePaymentCaptured, "missing-order"))
	if err == nil {
		t.Fatal("missing order must return an error for the consumer to retry")
	}
}

func TestPaymentEventHandler_MalformedIsSkipped(t *testing.T) {
	env := newTestEnv(t, checkoutsvc.Options{})
	handler := checkoutsvc.NewPaymentEventHandler(env.svc, loggerForTests())

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Value: []byte("not json")}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("malformed message must be skipped, got %v", err)
	}
}

func TestPaymentEventHandler_FailedIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, checkoutsvc.Options{})
	env.seedProduct(t, "product-1", 10000, 5)
	env.seedCart(t, "user-1", domain.CartItem{ProductID: "product-1", Qty: 1})

	order, _ := env.svc.PlaceOrder(context.Background(), "user-1", placeOrderReq())
	handler := checkoutsvc.NewPaymentEventHandler(env.svc, loggerForTests())

	if err := handler(context.Background(), paymentMessage(t, kafka.EventTypePaymentFailed, order.ID)); err != nil {
		t.Fatalf("failed event must be acknowledged, got %v", err)
	}

	got, _ := env.orders.Get(order.ID)
	if got.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, order must stay pending on payment failure", got.Status)
	}
}
