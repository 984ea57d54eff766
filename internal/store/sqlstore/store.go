// Package sqlstore keeps messages in a SQL database through gorm. Writes go
// straight to the table, or through a RabbitMQ persist queue when a publisher
// is configured. A Redis snapshot cache and a Redis change channel are
// optional.
package sqlstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"anonchat/internal/model"
	"anonchat/internal/observability"
	"anonchat/internal/store"
)

type Repository interface {
	Create(ctx context.Context, record *model.MessageRecord) error
	ListAll(ctx context.Context) ([]model.MessageRecord, error)
}

type Publisher interface {
	Publish(ctx context.Context, record model.MessageRecord) error
}

type SnapshotCache interface {
	Get(ctx context.Context) ([]model.Message, bool, error)
	Set(ctx context.Context, messages []model.Message) error
	Invalidate(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
}

type ChangeNotifier interface {
	Publish(ctx context.Context) error
}

type Store struct {
	repo      Repository
	publisher Publisher
	cache     SnapshotCache
	notifier  ChangeNotifier
	log       zerolog.Logger
	hub       *store.Hub

	mu     sync.RWMutex
	closed bool
}

type Option func(*Store)

// WithPublisher routes writes through an async persist queue. The consumer
// must call Changed after each row is stored.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithCache(c SnapshotCache) Option {
	return func(s *Store) { s.cache = c }
}

// WithNotifier publishes change signals instead of broadcasting locally. The
// listener side must call Broadcast.
func WithNotifier(n ChangeNotifier) Option {
	return func(s *Store) { s.notifier = n }
}

func New(repo Repository, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{repo: repo, log: logger}
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
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return store.ErrClosed
	}

	record := model.MessageRecord{
		PublicID: ulid.Make().String(),
		Text:     text,
		Sender:   string(sender),
		UserID:   userID,
	}

	if s.publisher != nil {
		s.invalidate(ctx)
		if err := s.publisher.Publish(ctx, record); err != nil {
			return fmt.Errorf("enqueue message failed: %w", err)
		}
		observability.MessagesAppended.WithLabelValues(string(sender)).Inc()
		return nil
	}

	if err := s.repo.Create(ctx, &record); err != nil {
		return err
	}
	observability.MessagesAppended.WithLabelValues(string(sender)).Inc()
	s.Changed(ctx)
	return nil
}

// Changed records that the table gained rows.
func (s *Store) Changed(ctx context.Context) {
	s.invalidate(ctx)
	if s.notifier != nil {
		err := s.notifier.Publish(ctx)
		if err == nil {
			return
		}
		s.log.Warn().Err(err).Msg("publish change signal failed, broadcasting locally")
	}
	s.hub.Broadcast()
}

// Broadcast wakes local subscribers. It is the receiving end of the change
// notifier.
func (s *Store) Broadcast() {
	s.hub.Broadcast()
}

func (s *Store) Subscribe(ctx context.Context, onUpdate func([]model.Message)) (store.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, onUpdate)
}

// Snapshot returns the current ordered message list.
func (s *Store) Snapshot(ctx context.Context) ([]model.Message, error) {
	return s.snapshot(ctx)
}

func (s *Store) snapshot(ctx context.Context) ([]model.Message, error) {
	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.Get(ctx); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	messages := make([]model.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.ToMessage())
	}
	model.SortForDisplay(messages)

	if s.cache != nil {
		if dirty, dirtyErr := s.cache.IsDirty(ctx); dirtyErr == nil && !dirty {
			if err := s.cache.Set(ctx, messages); err != nil {
				s.log.Warn().Err(err).Msg("cache message snapshot failed")
			}
		}
	}
	return messages, nil
}

func (s *Store) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("invalidate message snapshot failed")
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
