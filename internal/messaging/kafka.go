package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
)

// FeedbackEvent is the payload published after an outfit's feedback has been
// processed into pair scores and the user's learning profile. Downstream
// consumers (analytics, digest mailers) key on user id.
type FeedbackEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	OutfitID  uuid.UUID `json:"outfit_id"`
	Status    string    `json:"status"`
	Rating    *int      `json:"rating,omitempty"`
	Signal    float64   `json:"signal"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageBus publishes processed-feedback events. Publishing is best effort:
// the learning pipeline never fails because the bus is down.
type MessageBus struct {
	writer *kafka.Writer
	topic  string
	logger *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.FeedbackEvents,
		Balancer:     &kafka.Hash{}, // Key by user id so a user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &MessageBus{
		writer: writer,
		topic:  cfg.Kafka.Topics.FeedbackEvents,
		logger: logger,
	}, nil
}

func (mb *MessageBus) PublishFeedbackEvent(event FeedbackEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "user_id", Value: []byte(event.UserID.String())},
			{Key: "outfit_id", Value: []byte(event.OutfitID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).WithField("outfit_id", event.OutfitID).Error("Failed to publish feedback event to Kafka")
		return fmt.Errorf("failed to write feedback event to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"user_id":   event.UserID,
		"outfit_id": event.OutfitID,
		"topic":     mb.topic,
	}).Debug("Feedback event published to Kafka")

	return nil
}

func (mb *MessageBus) Close() error {
	if err := mb.writer.Close(); err != nil {
		return fmt.Errorf("failed to close feedback event writer: %w", err)
	}
	return nil
}

// GetMetrics returns writer statistics for the health endpoint.
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.writer.Stats()
	return map[string]interface{}{
		"messages_written": stats.Messages,
		"bytes_written":    stats.Bytes,
		"write_errors":     stats.Errors,
		"retries":          stats.Retries,
	}
}
