package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueuedMail is the message body published for the notification worker, which owns
// rendering and delivery.
type QueuedMail struct {
	ID        string            `json:"id"`
	To        string            `json:"to"`
	Template  Template          `json:"template"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

// QueueMailer hands messages to RabbitMQ instead of talking SMTP itself.
type QueueMailer struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewQueueMailer(url, queue string) (*QueueMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue, // name
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
	return &QueueMailer{conn: conn, ch: ch, queue: queue}, nil
}

func (q *QueueMailer) Send(ctx context.Context, to string, tmpl Template, fields map[string]string) error {
	body, err := json.Marshal(QueuedMail{
		ID:        uuid.NewString(),
		To:        to,
		Template:  tmpl,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.ch.PublishWithContext(ctx,
		"",      // exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish mail: %w", err)
	}
	log.Printf("mail: queued template=%s queue=%s", tmpl, q.queue)
	return nil
}

func (q *QueueMailer) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
