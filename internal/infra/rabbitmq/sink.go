package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"quest-session-service/internal/domain"
)

// Sink publishes analytics events to a durable AMQP queue, as an alternative
// to writing them straight into Postgres.
type Sink struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewSink(url, queue string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &Sink{conn: conn, channel: channel, queue: queue}, nil
}

func (s *Sink) Deliver(ctx context.Context, event domain.AnalyticsEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}
	err = s.channel.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID,
			Timestamp:   event.Timestamp,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish analytics event: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
