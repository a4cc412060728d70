package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
)

// amqpChannel is the subset of *amqp.Channel used by AMQPSink.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink is an Observer that republishes circle events to an AMQP topic
// exchange, using the event type as routing key.
type AMQPSink struct {
	ch       amqpChannel
	exchange string
	logger   *slog.Logger
}

var _ Observer = (*AMQPSink)(nil)

// NewAMQPSink creates a sink publishing to exchange on ch.
func NewAMQPSink(ch amqpChannel, exchange string, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPSink{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With(slog.String("component", "amqp_sink")),
	}
}

// Notify implements Observer.
func (s *AMQPSink) Notify(ctx context.Context, event CircleEvent) error {
	const op = "events.AMQPSink.Notify"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.ch.Publish(
		s.exchange,
		string(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID.String(),
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("event republished",
		slog.String("event_id", event.ID.String()),
		slog.String("routing_key", string(event.Type)))
	return nil
}

// DialAMQP connects to url, retrying up to retries times, and declares a
// durable topic exchange. The returned close function releases the channel
// and connection.
func DialAMQP(url, exchange string, retries int, delay time.Duration) (*amqp.Channel, func() error, error) {
	const op = "events.DialAMQP"

	var (
		conn *amqp.Connection
		err  error
	)
	for range max(retries, 1) {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(delay)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: failed to declare exchange %s: %w", op, exchange, err)
	}

	closeFn := func() error {
		chErr := ch.Close()
		connErr := conn.Close()
		if chErr != nil {
			return chErr
		}
		return connErr
	}
	return ch, closeFn, nil
}
