// Package store defines the message store contract shared by the memory, SQL
// and Firestore backends, plus the snapshot fan-out they build on.
package store

import (
	"context"
	"errors"

	"anonchat/internal/model"
)

var (
	ErrClosed        = errors.New("message store closed")
	ErrInvalidSender = errors.New("invalid message sender")
)

// Unsubscribe detaches a subscription. When it returns, the callback will not
// be invoked again. It must not be called from inside the callback.
type Unsubscribe func()

// Store is an append-only message log with live, ordered snapshots.
type Store interface {
	// Append writes one message. The store assigns id and timestamp; the
	// timestamp may resolve after Append returns.
	Append(ctx context.Context, text string, sender model.Sender, userID string) error

	// Subscribe calls onUpdate with the full ordered message list now and
	// after every change, one call at a time.
	Subscribe(ctx context.Context, onUpdate func([]model.Message)) (Unsubscribe, error)

	Close() error
}

// Validate checks the fields every backend requires.
func Validate(sender model.Sender) error {
	if !sender.Valid() {
		return ErrInvalidSender
	}
	return nil
}
