package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonchat/internal/model"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client, "test", time.Minute, 5*time.Second), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, hit, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	want := []model.Message{{ID: "a", Text: "hi", Timestamp: &ts, Sender: model.SenderUser, UserID: "u1", Seq: 1}}
	require.NoError(t, c.Set(ctx, want))

	got, hit, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, ts.Equal(*got[0].Timestamp))
}

func TestInvalidateSetsDirtyMarker(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, []model.Message{{ID: "a"}}))
	require.NoError(t, c.Invalidate(ctx))

	dirty, err := c.IsDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)

	_, hit, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	mr.FastForward(6 * time.Second)
	dirty, err = c.IsDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}
