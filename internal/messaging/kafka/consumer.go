package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение из Kafka
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает топики через consumer group и пересылает
// необрабатываемые сообщения в Dead Letter Queue.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	maxRetries  int
}

// NewConsumer создает consumer без DLQ с лимитом в 3 redelivery
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создает consumer, который после maxRetries redelivery
// отправляет сообщение в DLQ вместо бесконечных повторов
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxRetries int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		dlqProducer: dlqProducer,
		maxRetries:  maxRetries,
	}, nil
}

// Start запускает чтение топиков в фоне
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance, поэтому цикл
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и дожидается фоновых горутин
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim читает сообщения партиции до закрытия канала
// или завершения сессии
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg := <-claim.Messages():
			if msg == nil {
				return nil
			}
			c.processMessage(session, msg)
		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage обрабатывает одно сообщение; offset помечается только
// при успехе или после отправки в DLQ, иначе брокер доставит его снова
func (c *Consumer) processMessage(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	fields := log.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}
	c.logger.WithFields(fields).Debug("received message")

	if err := c.handleMessageWithRetry(session.Context(), msg); err != nil {
		c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
		return
	}

	session.MarkMessage(msg, "")
}

// handleMessageWithRetry делает одну попытку обработки; счетчик доставок
// ведется в заголовке сообщения, лимит закрывается через DLQ
func (c *Consumer) handleMessageWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) error {
	err := c.handler(ctx, msg)
	if err == nil {
		return nil
	}

	retryCount := c.getRetryCount(msg)
	if retryCount < c.maxRetries {
		c.logger.WithFields(log.Fields{
			"topic":       msg.Topic,
			"retry_count": retryCount,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")
		return err
	}

	if c.dlqProducer == nil {
		return err
	}

	if dlqErr := c.sendToDLQ(msg, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       msg.Topic,
		"retry_count": retryCount,
	}).Info("message sent to DLQ after max retries")
	return nil
}

func (c *Consumer) getRetryCount(msg *sarama.ConsumerMessage) int {
	for _, header := range msg.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// sendToDLQ публикует сообщение в DLQ topic вместе с координатами
// оригинала и текстом ошибки для последующего разбора
func (c *Consumer) sendToDLQ(msg *sarama.ConsumerMessage, processingErr error) error {
	return c.dlqProducer.PublishEvent(
		TopicDeadLetterQueue,
		string(msg.Key),
		map[string]interface{}{
			"original_topic":     msg.Topic,
			"original_partition": msg.Partition,
			"original_offset":    msg.Offset,
			"original_key":       string(msg.Key),
			"original_value":     string(msg.Value),
			"error_message":      processingErr.Error(),
			"failed_at":          time.Now().UTC().Format(time.RFC3339),
			"retry_count":        c.getRetryCount(msg),
		},
	)
}

// ParseOrderEvent декодирует событие заказа из тела сообщения
func ParseOrderEvent(msg *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParsePaymentEvent декодирует событие платежа из тела сообщения
func ParsePaymentEvent(msg *sarama.ConsumerMessage) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment event: %w", err)
	}
	return &event, nil
}
