// Package firestore keeps messages in a Cloud Firestore collection and relies
// on Firestore live queries for subscriptions.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"anonchat/internal/model"
	"anonchat/internal/observability"
	"anonchat/internal/store"
)

type Store struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[uint64]*subscription
	nextID uint64
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type messageDoc struct {
	Text      string     `firestore:"text"`
	Timestamp *time.Time `firestore:"timestamp"`
	Sender    string     `firestore:"sender"`
	UserID    string     `firestore:"userId"`
}

// NewStore creates a Firestore client for projectID. An empty credentialsFile
// falls back to application default credentials (or the emulator when
// FIRESTORE_EMULATOR_HOST is set).
func NewStore(ctx context.Context, projectID, collection, credentialsFile string, logger zerolog.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	if collection == "" {
		collection = "messages"
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{
		client:     client,
		collection: collection,
		log:        logger,
		subs:       make(map[uint64]*subscription),
	}, nil
}

func (s *Store) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *Store) ordered() firestore.Query {
	return s.col().OrderBy("timestamp", firestore.Asc)
}

// Append adds a document whose timestamp is resolved by the server.
func (s *Store) Append(ctx context.Context, text string, sender model.Sender, userID string) error {
	if err := store.Validate(sender); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return store.ErrClosed
	}

	_, _, err := s.col().Add(ctx, map[string]interface{}{
		"text":      text,
		"timestamp": firestore.ServerTimestamp,
		"sender":    string(sender),
		"userId":    userID,
	})
	if err != nil {
		return fmt.Errorf("firestore Append: %w", err)
	}
	observability.MessagesAppended.WithLabelValues(string(sender)).Inc()
	return nil
}

// Subscribe opens a live query. Each query snapshot is delivered whole, from
// one goroutine per subscription.
func (s *Store) Subscribe(ctx context.Context, onUpdate func([]model.Message)) (store.Unsubscribe, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	observability.ActiveSubscriptions.Inc()
	go s.watch(subCtx, id, sub, onUpdate)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-sub.done
		})
	}, nil
}

func (s *Store) watch(ctx context.Context, id uint64, sub *subscription, onUpdate func([]model.Message)) {
	it := s.ordered().Snapshots(ctx)
	defer func() {
		it.Stop()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		observability.ActiveSubscriptions.Dec()
		close(sub.done)
	}()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
				return
			}
			s.log.Error().Err(err).Msg("firestore live query ended")
			return
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			s.log.Error().Err(err).Msg("read firestore query snapshot failed")
			continue
		}
		messages := make([]model.Message, 0, len(docs))
		for i, doc := range docs {
			var data messageDoc
			if err := doc.DataTo(&data); err != nil {
				s.log.Warn().Err(err).Str("doc_id", doc.Ref.ID).Msg("skipping undecodable message document")
				continue
			}
			messages = append(messages, toMessage(doc.Ref.ID, uint64(i+1), data))
		}
		model.SortForDisplay(messages)

		if ctx.Err() != nil {
			return
		}
		onUpdate(messages)
	}
}

// toMessage maps a document onto a Message. seq is the document's position in
// the server-ordered result, so equal timestamps keep Firestore's order.
func toMessage(id string, seq uint64, doc messageDoc) model.Message {
	msg := model.Message{
		ID:     id,
		Text:   doc.Text,
		Sender: model.Sender(doc.Sender),
		UserID: doc.UserID,
		Seq:    seq,
	}
	if doc.Timestamp != nil && !doc.Timestamp.IsZero() {
		ts := doc.Timestamp.UTC()
		msg.Timestamp = &ts
	}
	return msg
}

func (s *Store) Ping(ctx context.Context) error {
	it := s.col().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return s.client.Close()
}
