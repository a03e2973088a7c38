package checkout

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// NewPaymentEventHandler возвращает обработчик событий платёжного шлюза.
// payment.captured переводит заказ pending → paid; payment.failed только
// логируется — решение об отмене остаётся за пользователем или оператором.
func NewPaymentEventHandler(svc Service, logger *log.Entry) kafka.MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-listener")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentEvent(message)
		if err != nil {
			// Непарсящееся сообщение бессмысленно ретраить.
			logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed payment event")
			return nil
		}

		switch event.EventType {
		case kafka.EventTypePaymentCaptured:
			if err := svc.ConfirmPayment(event.OrderID); err != nil {
				var transition *domain.InvalidTransitionError
				if errors.As(err, &transition) {
					logger.WithFields(log.Fields{
						"order_id": event.OrderID,
						"from":     transition.From,
					}).Warn("payment confirmation skipped: order already progressed")
					return nil
				}
				// Заказ может ещё не успеть записаться - оставляем на retry.
				return err
			}
			logger.WithField("order_id", event.OrderID).Info("payment confirmed")
			return nil
		case kafka.EventTypePaymentFailed:
			logger.WithField("order_id", event.OrderID).Warn("payment failed for order")
			return nil
		default:
			logger.WithFields(log.Fields{
				"order_id":   event.OrderID,
				"event_type": event.EventType,
			}).Debug("ignoring payment event")
			return nil
		}
	}
}
