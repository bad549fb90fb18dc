package notifications

import (
	"context"
	"encoding/json"
	"sync"

	"telehealth-backend/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const QueueName = "telehealth_notifications"

// QueuePublisher pushes every created notification onto a durable RabbitMQ
// queue so downstream consumers (push gateway, email worker) can fan out.
type QueuePublisher struct {
	ch *amqp.Channel
	mu sync.Mutex
}

func NewQueuePublisher(conn *amqp.Connection) (*QueuePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &QueuePublisher{ch: ch}, nil
}

func (p *QueuePublisher) Publish(ctx context.Context, notification models.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    notification.ID,
			Body:         body,
		},
	)
}

func (p *QueuePublisher) Close() error {
	return p.ch.Close()
}
