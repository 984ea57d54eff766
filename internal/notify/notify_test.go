package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEveryListener(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	newNotifier := func() *Notifier {
		client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return New(client, "chat:changed", zerolog.Nop())
	}
	a, b := newNotifier(), newNotifier()

	var gotA, gotB atomic.Int32
	stopA, err := a.Listen(ctx, func() { gotA.Add(1) })
	require.NoError(t, err)
	defer stopA()
	stopB, err := b.Listen(ctx, func() { gotB.Add(1) })
	require.NoError(t, err)
	defer stopB()

	require.NoError(t, a.Publish(ctx))

	assert.Eventually(t, func() bool { return gotA.Load() == 1 && gotB.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopEndsListener(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer client.Close()
	n := New(client, "chat:changed", zerolog.Nop())

	var got atomic.Int32
	stop, err := n.Listen(ctx, func() { got.Add(1) })
	require.NoError(t, err)
	stop()
	stop()

	require.NoError(t, n.Publish(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.Load())
}
