package model

import "time"

// MessageRecord is the SQL row behind a Message. The auto-increment ID is the
// insertion sequence; PublicID is the id clients see.
type MessageRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"size:26;not null;uniqueIndex" json:"public_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Sender    string    `gorm:"size:8;not null" json:"sender"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (MessageRecord) TableName() string {
	return "messages"
}

func (r MessageRecord) ToMessage() Message {
	msg := Message{
		ID:     r.PublicID,
		Text:   r.Text,
		Sender: Sender(r.Sender),
		UserID: r.UserID,
		Seq:    r.ID,
	}
	if !r.CreatedAt.IsZero() {
		ts := r.CreatedAt.UTC()
		msg.Timestamp = &ts
	}
	return msg
}
