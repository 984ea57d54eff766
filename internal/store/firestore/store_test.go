package firestore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonchat/internal/model"
)

func TestToMessage(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.FixedZone("X", 7200))
	msg := toMessage("doc1", 3, messageDoc{Text: "hello%20world", Timestamp: &ts, Sender: "user", UserID: "abc"})

	assert.Equal(t, "doc1", msg.ID)
	assert.Equal(t, "hello%20world", msg.Text)
	assert.Equal(t, model.SenderUser, msg.Sender)
	assert.Equal(t, "abc", msg.UserID)
	assert.Equal(t, uint64(3), msg.Seq)
	require.NotNil(t, msg.Timestamp)
	assert.True(t, ts.Equal(*msg.Timestamp))
}

func TestToMessageWithoutTimestamp(t *testing.T) {
	msg := toMessage("doc2", 1, messageDoc{Text: "x", Sender: "bot", UserID: model.BotUserID})
	assert.Nil(t, msg.Timestamp)

	zero := time.Time{}
	msg = toMessage("doc3", 2, messageDoc{Text: "x", Timestamp: &zero, Sender: "bot"})
	assert.Nil(t, msg.Timestamp)
}

// Runs against the Firestore emulator only.
func TestEmulatorAppendAndSubscribe(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	collection := "messages_test_" + time.Now().Format("150405.000000")
	s, err := NewStore(ctx, "demo-anonchat", collection, "", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	var (
		mu     sync.Mutex
		latest []model.Message
	)
	unsubscribe, err := s.Subscribe(ctx, func(messages []model.Message) {
		mu.Lock()
		latest = messages
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, s.Append(ctx, "A", model.SenderUser, "u1"))
	require.NoError(t, s.Append(ctx, "B", model.SenderBot, model.BotUserID))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 2 && latest[0].Text == "A" && latest[1].Text == "B"
	}, 10*time.Second, 50*time.Millisecond)
	assert.NoError(t, s.Ping(ctx))
}
