package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML inside answers is passed through on purpose: the sanitizer that
// runs right after conversion is the only trust boundary.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			emoji.New(emoji.WithRenderingMethod(emoji.Unicode)),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
		),
	)
}

// RenderMarkdown converts trusted markdown into sanitized, highlighted HTML.
// If conversion fails the text is escaped instead.
func (r *Renderer) RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		r.log.Warn().Err(err).Msg("markdown conversion failed")
		return r.EscapeText(source)
	}
	return r.Highlight(r.Sanitize(buf.String()))
}
