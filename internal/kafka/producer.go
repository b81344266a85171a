package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/prepforge/billing-service/pkg/logger"
)

// Топики жизненного цикла подписки
const (
	TopicSubscriptionActivated = "billing.subscription.activated"
	TopicSubscriptionUpdated   = "billing.subscription.updated"
	TopicSubscriptionPastDue   = "billing.subscription.past_due"
	TopicSubscriptionCanceled  = "billing.subscription.canceled"
)

// SubscriptionEvent это сообщение о смене состояния подписки пользователя.
type SubscriptionEvent struct {
	UserID         string     `json:"user_id"`
	Tier           string     `json:"tier"`
	Status         string     `json:"status"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Producer определяет интерфейс для публикации сообщений в Kafka.
type Producer interface {
	// PublishSubscriptionEvent отправляет событие жизненного цикла подписки.
	// Ключ сообщения - UserID: все события одного пользователя попадают
	// в одну партицию и сохраняют порядок.
	PublishSubscriptionEvent(ctx context.Context, topic string, event SubscriptionEvent) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewProducer создает и настраивает новый продюсер Kafka.
func NewProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	// RequireOne: ждем подтверждения только от лидера партиции.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishSubscriptionEvent сериализует событие в JSON и отправляет в топик Kafka
// с повторами на транзиентных ошибках записи.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, topic string, event SubscriptionEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		k.log.Errorw("Failed to marshal subscription event to JSON for Kafka", "error", err, "userId", event.UserID, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(event.UserID),
		Value: messageValue,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), writeCtx)
	err = backoff.Retry(func() error {
		return k.writer.WriteMessages(writeCtx, message)
	}, policy)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "userId", event.UserID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "userId", event.UserID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Published message to Kafka", "topic", topic, "userId", event.UserID)
	return nil
}

// Close закрывает соединение Kafka Writer.
// Вызывается при остановке приложения (graceful shutdown).
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}
