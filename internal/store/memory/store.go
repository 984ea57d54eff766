// Package memory is an in-process message store. It is NOT persistent and is
// only suitable for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"anonchat/internal/model"
	"anonchat/internal/observability"
	"anonchat/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	messages []model.Message
	seq      uint64
	closed   bool

	now func() time.Time
	hub *store.Hub
}

type Option func(*Store)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = store.NewHub(s.snapshot, logger)
	return s
}

func (s *Store) Append(ctx context.Context, text string, sender model.Sender, userID string) error {
	if err := store.Validate(sender); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	s.seq++
	ts := s.now().UTC()
	s.messages = append(s.messages, model.Message{
		ID:        ulid.Make().String(),
		Text:      text,
		Timestamp: &ts,
		Sender:    sender,
		UserID:    userID,
		Seq:       s.seq,
	})
	s.mu.Unlock()

	observability.MessagesAppended.WithLabelValues(string(sender)).Inc()
	s.hub.Broadcast()
	return nil
}

func (s *Store) Subscribe(ctx context.Context, onUpdate func([]model.Message)) (store.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, onUpdate)
}

// Snapshot returns the current ordered message list.
func (s *Store) Snapshot(ctx context.Context) ([]model.Message, error) {
	return s.snapshot(ctx)
}

func (s *Store) snapshot(_ context.Context) ([]model.Message, error) {
	s.mu.RLock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.RUnlock()

	model.SortForDisplay(out)
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
