package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/therealutkarshpriyadarshi/restream/internal/config"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

const (
	// DefaultExchange is used when the config leaves the exchange unset
	DefaultExchange = "restream"
	// EventsQueueName is the durable queue that retains every lifecycle event
	EventsQueueName = "broadcast_events"
	// AllEvents matches every broadcast routing key
	AllEvents = "broadcast.#"
)

// channel is the subset of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Queue publishes broadcast lifecycle events to a RabbitMQ topic exchange.
// The routing key is the event type, e.g. broadcast.terminated.
type Queue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      channel
	exchange string
}

// New creates a new queue client
func New(cfg config.QueueConfig) (*Queue, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = ch.QueueDeclare(
		EventsQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	if err := ch.QueueBind(EventsQueueName, AllEvents, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Queue{
		conn:     conn,
		channel:  ch,
		pub:      ch,
		exchange: exchange,
	}, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Name implements events.Publisher
func (q *Queue) Name() string {
	return "rabbitmq"
}

// Publish implements events.Publisher
func (q *Queue) Publish(ctx context.Context, event models.BroadcastEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	err = q.pub.PublishWithContext(ctx,
		q.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func encodeEvent(event models.BroadcastEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	// Terminal events matter most to consumers reconciling history
	var priority uint8
	if event.Terminal() {
		priority = 5
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.Type,
		Body:         body,
		Timestamp:    timestamp,
		Priority:     priority,
	}, nil
}

// Subscribe consumes events matching pattern through an exclusive, server-named
// queue until ctx is cancelled or the channel closes. Malformed messages are
// dropped.
func (q *Queue) Subscribe(ctx context.Context, pattern string, handler func(models.BroadcastEvent)) error {
	if pattern == "" {
		pattern = AllEvents
	}

	queue, err := q.channel.QueueDeclare(
		"",
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare subscriber queue: %w", err)
	}

	if err := q.channel.QueueBind(queue.Name, pattern, q.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind subscriber queue: %w", err)
	}

	msgs, err := q.channel.Consume(
		queue.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Body)
			if err != nil {
				continue
			}
			handler(event)
		}
	}
}

func decodeEvent(body []byte) (models.BroadcastEvent, error) {
	var event models.BroadcastEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return models.BroadcastEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

// GetQueueDepth returns the number of events waiting in the durable queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(EventsQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
