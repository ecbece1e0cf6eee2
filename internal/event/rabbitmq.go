package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQConnection holds the RabbitMQ connection and channel
type RabbitMQConnection struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
}

// ConnectRabbitMQ establishes a connection to RabbitMQ
func ConnectRabbitMQ(url string) (*RabbitMQConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQConnection{Connection: conn, Channel: ch}, nil
}

func (c *RabbitMQConnection) Close() error {
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Connection != nil {
		return c.Connection.Close()
	}
	return nil
}

// RabbitPublisher publishes workflow events to a durable queue
type RabbitPublisher struct {
	conn  *RabbitMQConnection
	queue string
	log   *logrus.Logger
}

// NewRabbitPublisher declares the queue once and returns a publisher bound to it.
func NewRabbitPublisher(conn *RabbitMQConnection, queue string, log *logrus.Logger) (*RabbitPublisher, error) {
	_, err := conn.Channel.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &RabbitPublisher{conn: conn, queue: queue, log: log}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         evt.Type,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish workflow event: %w", err)
	}

	p.log.WithFields(logrus.Fields{"queue": p.queue, "type": evt.Type, "entity_id": evt.EntityID}).Debug("workflow event published")
	return nil
}
