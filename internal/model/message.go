package model

import (
	"sort"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// BotUserID is the fixed user id written on every bot message.
const BotUserID = "bot"

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

type Message struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Sender    Sender     `json:"sender"`
	UserID    string     `json:"user_id"`
	Seq       uint64     `json:"seq,omitempty"`
}

// SortForDisplay orders messages by timestamp, then by insertion sequence.
// Messages still waiting for a timestamp go last.
func SortForDisplay(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		switch {
		case a.Timestamp == nil && b.Timestamp == nil:
			return a.Seq < b.Seq
		case a.Timestamp == nil:
			return false
		case b.Timestamp == nil:
			return true
		case !a.Timestamp.Equal(*b.Timestamp):
			return a.Timestamp.Before(*b.Timestamp)
		default:
			return a.Seq < b.Seq
		}
	})
}
