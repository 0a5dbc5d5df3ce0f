// Package messaging is the RabbitMQ transport for outbound service events:
// one connection and channel, topic exchange declaration, and a JSON
// publisher stamping correlation IDs onto every message.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// RabbitMQ owns the broker connection and the channel events are
// published on. The service only publishes; consuming happens elsewhere.
type RabbitMQ struct {
	config *config.RabbitMQConfig
	logger *logger.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// New dials the broker and opens the publishing channel
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{config: cfg, logger: log}
	if err := rmq.connect(); err != nil {
		return nil, err
	}
	return rmq, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Qos(r.config.PrefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("set channel QoS: %w", err)
	}

	r.conn = conn
	r.channel = channel
	r.logger.Info().Str("exchange", r.Exchange()).Msg("connected to RabbitMQ")
	return nil
}

// Exchange returns the configured events exchange, defaulting to ocr.events
func (r *RabbitMQ) Exchange() string {
	if r.config.Exchange != "" {
		return r.config.Exchange
	}
	return ExchangeOCREvents
}

// Channel returns the publishing channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.channel.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Reconnect redials the broker, waiting the configured delay between
// attempts. It fails once the attempt budget is spent or after Close.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("connection is permanently closed")
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		r.logger.Info().Int("attempt", attempt).Msg("reconnecting to RabbitMQ")

		if lastErr = r.connect(); lastErr == nil {
			return nil
		}
		r.logger.Warn().Err(lastErr).Msg("reconnection attempt failed")

		select {
		case <-time.After(r.config.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("reconnect failed after %d attempts: %w", r.config.MaxRetries, lastErr)
}

// Close shuts down the channel and connection. The connection cannot be
// reopened afterwards.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}
