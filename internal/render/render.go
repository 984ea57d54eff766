// Package render turns stored message payloads into HTML that is safe to hand
// to a browser.
//
// The two senders are deliberately treated differently. User text is never
// markup: it is decoded, HTML-escaped and only then sanitized. Bot text was
// produced by RenderMarkdown before it was stored, so it is decoded and
// sanitized without escaping, then its code blocks are highlighted.
package render

import (
	"html"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"

	"anonchat/internal/codec"
	"anonchat/internal/model"
)

const timestampLayout = "15:04:05 02-01-2006"

var (
	highlightClass = regexp.MustCompile(`^hl-[a-zA-Z0-9]+$`)
	languageClass  = regexp.MustCompile(`^language-[\w+#.-]+$`)
)

// View is one message ready for display.
type View struct {
	ID        string       `json:"id"`
	HTML      string       `json:"html"`
	Sender    model.Sender `json:"sender"`
	UserID    string       `json:"user_id"`
	Mine      bool         `json:"mine"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	TimeLabel string       `json:"time_label"`
}

type Renderer struct {
	policy   *bluemonday.Policy
	strict   *bluemonday.Policy
	markdown goldmark.Markdown
	location *time.Location
	log      zerolog.Logger
}

type Option func(*Renderer)

// WithLocation sets the zone used for timestamp labels.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.location = loc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Renderer) {
		r.log = logger
	}
}

func New(opts ...Option) *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(highlightClass).OnElements("span")
	// The fence language picks the lexer in Highlight.
	policy.AllowAttrs("class").Matching(languageClass).OnElements("code")

	r := &Renderer{
		policy:   policy,
		strict:   bluemonday.StrictPolicy(),
		markdown: newMarkdown(),
		location: time.Local,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sanitize removes every construct able to run script while keeping
// structural markup and highlight spans.
func (r *Renderer) Sanitize(fragment string) string {
	return r.policy.Sanitize(fragment)
}

// StripAll removes all markup.
func (r *Renderer) StripAll(fragment string) string {
	return r.strict.Sanitize(fragment)
}

// EscapeText renders plain text as literal, never as markup.
func (r *Renderer) EscapeText(text string) string {
	return r.policy.Sanitize(html.EscapeString(text))
}

// RenderMessage renders one stored message for viewerID. A message that cannot
// be decoded or rendered is shown with all markup stripped; it never fails.
func (r *Renderer) RenderMessage(msg model.Message, viewerID string) (view View) {
	view = View{
		ID:        msg.ID,
		Sender:    msg.Sender,
		UserID:    msg.UserID,
		Mine:      msg.Sender == model.SenderUser && viewerID != "" && msg.UserID == viewerID,
		Timestamp: msg.Timestamp,
		TimeLabel: r.FormatTimestamp(msg.Timestamp),
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("message_id", msg.ID).Msg("render message failed")
			view.HTML = r.StripAll(msg.Text)
		}
	}()

	raw, err := codec.Decode(msg.Text)
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("undecodable message text")
		view.HTML = r.StripAll(msg.Text)
		return view
	}

	switch msg.Sender {
	case model.SenderBot:
		view.HTML = r.Highlight(r.Sanitize(raw))
	default:
		view.HTML = r.EscapeText(raw)
	}
	return view
}

// RenderList renders a snapshot in the order given.
func (r *Renderer) RenderList(messages []model.Message, viewerID string) []View {
	views := make([]View, 0, len(messages))
	for _, msg := range messages {
		views = append(views, r.RenderMessage(msg, viewerID))
	}
	return views
}

// FormatTimestamp renders "HH:MM:SS DD-MM-YYYY", or "" for a pending timestamp.
func (r *Renderer) FormatTimestamp(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.In(r.location).Format(timestampLayout)
}
