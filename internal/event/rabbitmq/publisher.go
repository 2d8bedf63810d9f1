// Package rabbitmq publishes engine events to a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/event"
)

const DefaultExchange = "quiz-events"

// Publisher is an event.Sink backed by an AMQP topic exchange. With an empty
// URI it is disabled and drops every event.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	logger   zerolog.Logger

	mu sync.Mutex
}

func NewPublisher(uri, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	logger := log.With().Str("component", "event_publisher").Str("exchange", exchange).Logger()

	if uri == "" {
		logger.Warn().Msg("RabbitMQ URI is empty, event publishing is disabled")
		return &Publisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info().Msg("event publisher initialized")
	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) Publish(ctx context.Context, e event.Event) error {
	if !p.enabled {
		p.logger.Debug().Str("event_type", string(e.Type)).Msg("event publishing disabled, skipping")
		return nil
	}

	msg, err := encode(e)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func encode(e event.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
		Headers: amqp.Table{
			"event_type": string(e.Type),
			"user_id":    e.UserID,
			"quiz_id":    e.QuizID,
			"attempt_id": e.AttemptID,
		},
	}, nil
}
