package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"anonchat/internal/model"
	"anonchat/internal/platform/rabbitmq"
)

type MessageWriter interface {
	Create(ctx context.Context, record *model.MessageRecord) error
}

// MessagePersistWorker drains the persist queue into the database. It is the
// only consumer and takes one delivery at a time, so rows are inserted in
// publish order.
type MessagePersistWorker struct {
	conn        *amqp.Connection
	repo        MessageWriter
	queueName   string
	onPersisted func(ctx context.Context)
	log         zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(
	conn *amqp.Connection,
	repo MessageWriter,
	queueName string,
	onPersisted func(ctx context.Context),
	logger zerolog.Logger,
) *MessagePersistWorker {
	if onPersisted == nil {
		onPersisted = func(context.Context) {}
	}
	return &MessagePersistWorker{
		conn:        conn,
		repo:        repo,
		queueName:   queueName,
		onPersisted: onPersisted,
		log:         logger,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	if err := w.Persist(ctx, d.Body); err != nil {
		w.log.Error().Err(err).Str("message_id", d.MessageId).Msg("persist message failed")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Persist decodes one queued record, writes it and signals the change.
func (w *MessagePersistWorker) Persist(ctx context.Context, body []byte) error {
	var record model.MessageRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return fmt.Errorf("decode queued message failed: %w", err)
	}
	if err := w.repo.Create(ctx, &record); err != nil {
		return err
	}
	w.onPersisted(ctx)
	return nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
