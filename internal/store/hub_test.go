package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonchat/internal/model"
)

func TestHubDeliversInitialSnapshotAndChanges(t *testing.T) {
	var loads atomic.Int32
	hub := NewHub(func(context.Context) ([]model.Message, error) {
		n := loads.Add(1)
		return make([]model.Message, n), nil
	}, zerolog.Nop())
	defer hub.Close()

	got := make(chan int, 8)
	unsubscribe, err := hub.Subscribe(context.Background(), func(messages []model.Message) {
		got <- len(messages)
	})
	require.NoError(t, err)
	defer unsubscribe()

	assert.Equal(t, 1, <-got)
	hub.Broadcast()
	assert.Equal(t, 2, <-got)
	assert.Equal(t, 1, hub.Len())
}

func TestHubCoalescesSignalsDuringDelivery(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	hub := NewHub(func(context.Context) ([]model.Message, error) {
		return nil, nil
	}, zerolog.Nop())
	defer hub.Close()

	unsubscribe, err := hub.Subscribe(context.Background(), func([]model.Message) {
		if calls.Add(1) == 1 {
			<-release
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 5; i++ {
		hub.Broadcast()
	}
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHubKeepsSubscriptionAfterLoadError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	hub := NewHub(func(context.Context) ([]model.Message, error) {
		if fail.Load() {
			return nil, errors.New("backend down")
		}
		return []model.Message{{ID: "a"}}, nil
	}, zerolog.Nop())
	defer hub.Close()

	got := make(chan int, 4)
	unsubscribe, err := hub.Subscribe(context.Background(), func(messages []model.Message) {
		got <- len(messages)
	})
	require.NoError(t, err)
	defer unsubscribe()

	fail.Store(false)
	hub.Broadcast()
	assert.Equal(t, 1, <-got)
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	hub := NewHub(func(context.Context) ([]model.Message, error) { return nil, nil }, zerolog.Nop())

	unsubscribe, err := hub.Subscribe(context.Background(), func([]model.Message) {})
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Len())

	_, err = hub.Subscribe(context.Background(), func([]model.Message) {})
	require.NoError(t, err)
	hub.Close()
	assert.Equal(t, 0, hub.Len())

	_, err = hub.Subscribe(context.Background(), func([]model.Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}
