// Package notify carries "messages changed" signals between replicas over
// Redis pub/sub.
package notify

import (
	"context"
	"fmt"
	"sync"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const changedPayload = "changed"

type Notifier struct {
	client  *redisv9.Client
	channel string
	log     zerolog.Logger
}

func New(client *redisv9.Client, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{client: client, channel: channel, log: logger}
}

func (n *Notifier) Publish(ctx context.Context) error {
	if err := n.client.Publish(ctx, n.channel, changedPayload).Err(); err != nil {
		return fmt.Errorf("redis publish change failed: %w", err)
	}
	return nil
}

// Listen calls onChange for every signal on the channel, including the ones
// this process published. The returned stop func closes the subscription and
// waits for the listener goroutine.
func (n *Notifier) Listen(ctx context.Context, onChange func()) (func(), error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s failed: %w", n.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			if msg.Payload != changedPayload {
				n.log.Warn().Str("payload", msg.Payload).Msg("ignoring unknown change signal")
				continue
			}
			onChange()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}
