package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	PlatformExchange = "platform.events"
	PlatformQueue    = "chat.platform-events"

	deadLetterExchange = "platform.events.dead"
	deadLetterQueue    = "chat.platform-events.dead"

	RoutingApplicationAccepted = "application.accepted"
	RoutingRoomDeactivated     = "room.deactivated"
	RoutingNotification        = "notification.#"

	prefetchCount = 16
	retryInterval = 2 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry keeps dialing until the broker accepts the
// connection or ctx is done. Brokers usually start slower than the server.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ after %d attempts: %w", attempt, err)
		case <-time.After(retryInterval):
		}
	}
}

// Setup declares the platform topology. Deliveries rejected without
// requeue land in the dead-letter queue for inspection.
func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		PlatformExchange, // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare platform exchange: %w", err)
	}

	if err := r.channel.ExchangeDeclare(
		deadLetterExchange, // name
		"fanout",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", deadLetterQueue, err)
	}
	if err := r.channel.QueueBind(deadLetterQueue, "", deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", deadLetterQueue, err)
	}

	if _, err := r.channel.QueueDeclare(
		PlatformQueue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		amqp.Table{"x-dead-letter-exchange": deadLetterExchange},
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", PlatformQueue, err)
	}

	for _, key := range []string{RoutingApplicationAccepted, RoutingRoomDeactivated, RoutingNotification} {
		if err := r.channel.QueueBind(PlatformQueue, key, PlatformExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", PlatformQueue, key, err)
		}
	}

	if err := r.channel.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// Publish sends body to the platform exchange. The chat core only consumes
// in production; publishing serves tooling and tests.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := r.channel.PublishWithContext(
		ctx,
		PlatformExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// ConsumePlatformEvents registers a manual-ack consumer on the platform
// queue.
func (r *RabbitMQ) ConsumePlatformEvents() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		PlatformQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming platform events",
		slog.String("queue", PlatformQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
