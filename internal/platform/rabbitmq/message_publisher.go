package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"anonchat/internal/model"
)

// ErrNotConfirmed means the broker nacked a publish.
var ErrNotConfirmed = errors.New("rabbitmq publish not confirmed")

// MessagePublisher sends message rows to the persist queue over one channel
// in confirm mode. Publish returns after the broker has taken the message.
type MessagePublisher struct {
	conn      *amqp.Connection
	queueName string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// channel returns the confirm channel, reopening it after a channel error.
// Callers hold p.mu.
func (p *MessagePublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	if err := DeclareQueue(ch, p.queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms failed: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *MessagePublisher) Publish(ctx context.Context, record model.MessageRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal message payload failed: %w", err)
	}

	// One publish at a time keeps queue order equal to Append order.
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    record.PublicID,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message failed: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publish confirm failed: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

// DeclareQueue declares the durable persist queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
