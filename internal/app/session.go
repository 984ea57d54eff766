package app

import (
	"context"
	"fmt"
	"sync"

	"anonchat/internal/model"
	"anonchat/internal/render"
	"anonchat/internal/store"
)

// Session is one mounted chat view. It holds the view's only subscription
// and the answer requests it started; Close releases both.
type Session struct {
	svc         *ChatService
	userID      string
	scope       *scope
	unsubscribe store.Unsubscribe
	closeOnce   sync.Once
}

// OpenSession subscribes on behalf of userID. onSnapshot receives the whole
// rendered list on every change; onNotice receives transient notices.
func (s *ChatService) OpenSession(userID string, onSnapshot func([]render.View), onNotice NoticeFunc) (*Session, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if s.isClosed() {
		return nil, ErrServiceClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	sc := &scope{ctx: ctx, cancel: cancel, notify: onNotice}

	unsubscribe, err := s.store.Subscribe(ctx, func(messages []model.Message) {
		onSnapshot(s.renderer.RenderList(messages, userID))
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	return &Session{
		svc:         s,
		userID:      userID,
		scope:       sc,
		unsubscribe: unsubscribe,
	}, nil
}

func (ss *Session) UserID() string {
	return ss.userID
}

// Done is closed when the session closes or the service shuts down.
func (ss *Session) Done() <-chan struct{} {
	return ss.scope.ctx.Done()
}

// Send fails with ErrServiceClosed once the session is closed.
func (ss *Session) Send(ctx context.Context, text string) (SendResult, error) {
	if ss.scope.ctx.Err() != nil {
		return SendResult{}, ErrServiceClosed
	}
	return ss.svc.send(ctx, ss.scope, ss.userID, text)
}

// Close stops snapshot delivery, drops pending answers and waits for the
// session's answer requests to return. Answers arriving after Close are
// never appended.
func (ss *Session) Close() {
	ss.closeOnce.Do(func() {
		ss.scope.cancel()
		ss.unsubscribe()
		ss.scope.wg.Wait()
	})
}
