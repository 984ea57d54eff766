package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ids(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestSortForDisplay(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	messages := []Message{
		{ID: "pending", Seq: 5},
		{ID: "late", Timestamp: &t1, Seq: 1},
		{ID: "tie-b", Timestamp: &t0, Seq: 3},
		{ID: "tie-a", Timestamp: &t0, Seq: 2},
	}
	SortForDisplay(messages)

	assert.Equal(t, []string{"tie-a", "tie-b", "late", "pending"}, ids(messages))
}

func TestSenderValid(t *testing.T) {
	assert.True(t, SenderUser.Valid())
	assert.True(t, SenderBot.Valid())
	assert.False(t, Sender("system").Valid())
	assert.False(t, Sender("").Valid())
}

func TestRecordToMessage(t *testing.T) {
	created := time.Date(2024, 3, 5, 7, 8, 9, 0, time.FixedZone("X", 3600))
	msg := MessageRecord{ID: 7, PublicID: "01H", Text: "hi", Sender: "bot", UserID: BotUserID, CreatedAt: created}.ToMessage()

	assert.Equal(t, "01H", msg.ID)
	assert.Equal(t, uint64(7), msg.Seq)
	assert.Equal(t, SenderBot, msg.Sender)
	if assert.NotNil(t, msg.Timestamp) {
		assert.True(t, created.Equal(*msg.Timestamp))
		assert.Equal(t, time.UTC, msg.Timestamp.Location())
	}

	assert.Nil(t, MessageRecord{PublicID: "x"}.ToMessage().Timestamp)
}
