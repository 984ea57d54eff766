package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"anonchat/internal/app"
	"anonchat/internal/render"
	"anonchat/internal/transport/http/middleware"
	"anonchat/internal/transport/http/response"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 20 * time.Second
	wsReadLimit    = 8 << 10
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type     string          `json:"type"`
	Messages []render.View   `json:"messages,omitempty"`
	Notice   *app.Notice     `json:"notice,omitempty"`
	Result   *app.SendResult `json:"result,omitempty"`
}

// ClientFrame is one client-to-server websocket message.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type WSHandler struct {
	chatService *app.ChatService
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

func NewWSHandler(chatService *app.ChatService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		chatService: chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// outbox holds what the writer still has to send. Snapshots replace each
// other so a slow client only ever gets the newest list.
type outbox struct {
	mu       sync.Mutex
	snapshot []render.View
	pending  bool
	frames   []Frame
	wake     chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) putSnapshot(views []render.View) {
	o.mu.Lock()
	o.snapshot = views
	o.pending = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) putFrame(f Frame) {
	o.mu.Lock()
	if len(o.frames) < 32 {
		o.frames = append(o.frames, f)
	}
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) take() []Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.frames
	o.frames = nil
	if o.pending {
		views := o.snapshot
		if views == nil {
			views = []render.View{}
		}
		out = append(out, Frame{Type: "snapshot", Messages: views})
		o.pending = false
		o.snapshot = nil
	}
	return out
}

// Serve upgrades the request and runs one chat session for the connection.
func (h *WSHandler) Serve(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "identity not resolved")
		return
	}

	var header http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	box := newOutbox()
	session, err := h.chatService.OpenSession(userID, box.putSnapshot, func(n app.Notice) {
		box.putFrame(Frame{Type: "notice", Notice: &n})
	})
	if err != nil {
		h.log.Error().Err(err).Msg("open chat session failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "chat unavailable"),
			time.Now().Add(wsWriteTimeout))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, box, session.Done())
	}()

	h.readLoop(ctx, conn, session, box)

	session.Close()
	cancel()
	<-writerDone
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *app.Session, box *outbox) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		var in ClientFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if in.Type != "send" {
			box.putFrame(Frame{Type: "notice", Notice: &app.Notice{Kind: "rejected", Message: "unknown frame type"}})
			continue
		}
		result, err := session.Send(ctx, in.Text)
		switch {
		case err == nil:
			box.putFrame(Frame{Type: "sent", Result: &result})
		case errors.Is(err, app.ErrMessageEmpty):
			// Blank input is a no-op.
		default:
			h.log.Error().Err(err).Msg("send message failed")
			box.putFrame(Frame{Type: "notice", Notice: &app.Notice{Kind: "send_failed", Message: "message not sent"}})
		}
	}
}

// writeLoop also ends the connection when the session is closed from the
// server side, which stops readLoop.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, box *outbox, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sessionDone:
			if ctx.Err() == nil {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteTimeout))
				_ = conn.Close()
			}
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-box.wake:
			for _, f := range box.take() {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(f); err != nil {
					h.log.Debug().Err(err).Msg("websocket write failed")
					// Unblocks the reader.
					_ = conn.Close()
					return
				}
			}
		}
	}
}
