package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Compile-time check
var _ UpdatePublisher = (*RabbitMQUpdatePublisher)(nil)

// RabbitMQUpdatePublisher publishes update events to a durable fanout
// exchange.
type RabbitMQUpdatePublisher struct {
	ch     *amqp091.Channel
	logger *zap.Logger
}

// NewRabbitMQUpdatePublisher opens a channel on conn and declares the
// updates exchange.
func NewRabbitMQUpdatePublisher(conn *amqp091.Connection, logger *zap.Logger) (*RabbitMQUpdatePublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel for updates", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		updatesExchange,
		updatesExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare updates exchange", zap.String("exchange", updatesExchange), zap.Error(err))
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", updatesExchange, err)
	}

	return &RabbitMQUpdatePublisher{
		ch:     ch,
		logger: logger.Named("UpdatePublisher"),
	}, nil
}

// PublishUpdate sends one event; the routing key is unused for fanout.
func (p *RabbitMQUpdatePublisher) PublishUpdate(ctx context.Context, payload UpdatePayload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal update payload", zap.Error(err), zap.Any("payload", payload))
		return fmt.Errorf("failed to marshal update payload: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		updatesExchange,
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish update", zap.String("event", payload.Event), zap.Error(err))
		return fmt.Errorf("failed to publish update: %w", err)
	}
	p.logger.Debug("Update published", zap.String("event", payload.Event))
	return nil
}

// Close releases the channel.
func (p *RabbitMQUpdatePublisher) Close() error {
	return p.ch.Close()
}
