package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"anonchat/internal/answer"
	"anonchat/internal/codec"
	"anonchat/internal/model"
	"anonchat/internal/observability"
	"anonchat/internal/render"
	"anonchat/internal/store"
)

var (
	ErrMessageEmpty  = errors.New("message content is empty")
	ErrInvalidInput  = errors.New("invalid input")
	ErrServiceClosed = errors.New("chat service closed")
)

const (
	NoticeAIUnavailable = "ai_unavailable"
	NoticeAIBusy        = "ai_busy"
)

// Notice is a transient, non-persisted message for one session.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type NoticeFunc func(Notice)

type Asker interface {
	Ask(ctx context.Context, encodedQuestion string) (string, error)
}

type Config struct {
	MaxLength     int
	CommandPrefix string
	// MaxInFlight bounds concurrent answer requests; zero means unlimited.
	MaxInFlight int64
}

type SendResult struct {
	Truncated bool `json:"truncated"`
	Command   bool `json:"command"`
}

type ChatService struct {
	store    store.Store
	asker    Asker
	renderer *render.Renderer
	cfg      Config
	sem      *semaphore.Weighted
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	global *scope

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// scope is the lifetime an answer is delivered into. A session owns one;
// sends without a session use the service-wide scope.
type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	notify NoticeFunc
	wg     sync.WaitGroup
}

func (sc *scope) report(n Notice) {
	if sc.notify == nil || sc.ctx.Err() != nil {
		return
	}
	sc.notify(n)
}

func NewChatService(st store.Store, asker Asker, renderer *render.Renderer, cfg Config, logger zerolog.Logger) *ChatService {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 300
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "/bot"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ChatService{
		store:    st,
		asker:    asker,
		renderer: renderer,
		cfg:      cfg,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.MaxInFlight > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	s.global = &scope{ctx: ctx, cancel: cancel, notify: func(n Notice) {
		s.log.Info().Str("kind", n.Kind).Str("detail", n.Detail).Msg("notice without session")
	}}
	return s
}

// Send appends a user message and, for commands, starts an answer request
// whose result is not tied to any session.
func (s *ChatService) Send(ctx context.Context, userID, text string) (SendResult, error) {
	return s.send(ctx, s.global, userID, text)
}

func (s *ChatService) send(ctx context.Context, sc *scope, userID, text string) (SendResult, error) {
	if strings.TrimSpace(userID) == "" {
		return SendResult{}, ErrInvalidInput
	}
	if strings.TrimSpace(text) == "" {
		return SendResult{}, ErrMessageEmpty
	}
	if s.isClosed() {
		return SendResult{}, ErrServiceClosed
	}

	text, truncated := truncateRunes(text, s.cfg.MaxLength)

	if err := s.store.Append(ctx, codec.Encode(text), model.SenderUser, userID); err != nil {
		return SendResult{}, fmt.Errorf("append user message failed: %w", err)
	}

	question, isCommand := ParseCommand(text, s.cfg.CommandPrefix)
	if isCommand {
		s.dispatch(sc, question)
	}
	return SendResult{Truncated: truncated, Command: isCommand}, nil
}

// ParseCommand reports whether the trimmed text starts with prefix and has a
// non-blank question after it.
func ParseCommand(text, prefix string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, prefix) {
		return "", false
	}
	question := strings.TrimSpace(trimmed[len(prefix):])
	if question == "" {
		return "", false
	}
	return question, true
}

func truncateRunes(text string, limit int) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], true
		}
		n++
	}
	return text, false
}

func (s *ChatService) dispatch(sc *scope, question string) {
	if s.sem != nil && !s.sem.TryAcquire(1) {
		observability.AnswerRequests.WithLabelValues("busy").Inc()
		sc.report(Notice{Kind: NoticeAIBusy, Message: "AI busy"})
		return
	}

	s.mu.Lock()
	if s.closed || sc.ctx.Err() != nil {
		s.mu.Unlock()
		s.release()
		return
	}
	s.wg.Add(1)
	sc.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer sc.wg.Done()
		defer s.release()
		s.answer(sc, question)
	}()
}

func (s *ChatService) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *ChatService) answer(sc *scope, question string) {
	log := s.log.With().Str("question", question).Logger()

	start := time.Now()
	raw, err := s.asker.Ask(sc.ctx, codec.Encode(question))
	observability.AnswerLatency.Observe(time.Since(start).Seconds())

	if sc.ctx.Err() != nil {
		observability.AnswerRequests.WithLabelValues("discarded").Inc()
		log.Debug().Msg("session closed before the answer arrived, discarding")
		return
	}
	if err != nil {
		outcome, detail := classify(err)
		observability.AnswerRequests.WithLabelValues(outcome).Inc()
		log.Warn().Err(err).Str("outcome", outcome).Msg("answer request failed")
		sc.report(Notice{Kind: NoticeAIUnavailable, Message: "AI unavailable", Detail: detail})
		return
	}

	htmlAnswer := s.renderer.RenderMarkdown(raw)
	if err := s.store.Append(sc.ctx, codec.Encode(htmlAnswer), model.SenderBot, model.BotUserID); err != nil {
		observability.AnswerRequests.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("append bot message failed")
		sc.report(Notice{Kind: NoticeAIUnavailable, Message: "AI unavailable"})
		return
	}
	observability.AnswerRequests.WithLabelValues("ok").Inc()
}

func classify(err error) (outcome, detail string) {
	var unsuccessful *answer.UnsuccessfulError
	switch {
	case errors.As(err, &unsuccessful):
		return "unsuccessful", unsuccessful.Notice
	case errors.Is(err, answer.ErrRejected), errors.Is(err, answer.ErrMissingCredential):
		return "rejected", ""
	default:
		return "error", ""
	}
}

// Messages returns the rendered snapshot as seen by viewerID.
func (s *ChatService) Messages(ctx context.Context, viewerID string) ([]render.View, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	first := make(chan []model.Message, 1)
	unsubscribe, err := s.store.Subscribe(ctx, func(messages []model.Message) {
		select {
		case first <- messages:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}
	defer unsubscribe()

	select {
	case messages := <-first:
		return s.renderer.RenderList(messages, viewerID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until every started answer request has finished.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

func (s *ChatService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels outstanding answer requests and waits for them.
func (s *ChatService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
