package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"anonchat/internal/model"
	"anonchat/internal/observability"
)

// Loader reads the complete, display-ordered message list.
type Loader func(ctx context.Context) ([]model.Message, error)

// Hub fans change signals out to subscriptions. Each subscription owns one
// goroutine that reloads the snapshot and calls its callback, so deliveries
// for one subscriber never overlap and always carry a whole snapshot.
// Signals that arrive while a delivery is running are coalesced.
type Hub struct {
	load Loader
	log  zerolog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	signal chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(load Loader, logger zerolog.Logger) *Hub {
	return &Hub{
		load: load,
		log:  logger,
		subs: make(map[uint64]*subscription),
	}
}

// Subscribe starts a subscription that lives until Unsubscribe is called,
// ctx is done, or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, onUpdate func([]model.Message)) (Unsubscribe, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		signal: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	observability.ActiveSubscriptions.Inc()
	go h.run(subCtx, id, sub, onUpdate)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-sub.done
		})
	}, nil
}

func (h *Hub) run(ctx context.Context, id uint64, sub *subscription, onUpdate func([]model.Message)) {
	defer func() {
		h.remove(id)
		observability.ActiveSubscriptions.Dec()
		close(sub.done)
	}()

	for {
		messages, err := h.load(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("load message snapshot failed")
		} else {
			onUpdate(messages)
		}

		select {
		case <-ctx.Done():
			return
		case <-sub.signal:
		}
	}
}

// Broadcast tells every subscription the message list changed.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Close stops every subscription and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
}
