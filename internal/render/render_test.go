package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"anonchat/internal/codec"
	"anonchat/internal/model"
)

func userMessage(text string) model.Message {
	return model.Message{ID: "m1", Text: codec.Encode(text), Sender: model.SenderUser, UserID: "u1"}
}

func botMessage(htmlText string) model.Message {
	return model.Message{ID: "b1", Text: codec.Encode(htmlText), Sender: model.SenderBot, UserID: model.BotUserID}
}

func visibleText(t *testing.T, fragment string) string {
	t.Helper()
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	require.NoError(t, err)
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(textContent(n))
	}
	return sb.String()
}

func TestUserTextIsNeverMarkup(t *testing.T) {
	r := New()
	payloads := []string{
		`<script>alert(1)</script>`,
		`<img src=x onerror=alert(1)>`,
		`"><svg onload=alert(1)>`,
		`<a href="javascript:alert(1)">click</a>`,
	}
	for _, p := range payloads {
		view := r.RenderMessage(userMessage(p), "")
		assert.NotContains(t, view.HTML, "<script", p)
		assert.NotContains(t, view.HTML, "<img", p)
		assert.NotContains(t, view.HTML, "<svg", p)
		assert.NotContains(t, view.HTML, "<a ", p)
		assert.Equal(t, p, visibleText(t, view.HTML), "payload must stay visible as literal text")
	}
}

func TestUserPlainText(t *testing.T) {
	view := New().RenderMessage(userMessage("hello"), "u1")
	assert.Equal(t, "hello", view.HTML)
	assert.True(t, view.Mine)
	assert.Equal(t, model.SenderUser, view.Sender)
}

func TestUserQuotesEscaped(t *testing.T) {
	view := New().RenderMessage(userMessage(`it's "x" & <y>`), "")
	assert.NotContains(t, view.HTML, "<y>")
	assert.Equal(t, `it's "x" & <y>`, visibleText(t, view.HTML))
}

func TestRenderMarkdownBold(t *testing.T) {
	out := New().RenderMarkdown("**4**")
	assert.Contains(t, out, "<strong>4</strong>")
	assert.Contains(t, out, "<p>")
}

func TestRenderMarkdownStructureAndScripts(t *testing.T) {
	source := strings.Join([]string{
		"# Title",
		"",
		"- one",
		"- two",
		"",
		"See [docs](https://example.com).",
		"",
		"<script>alert('x')</script>",
		"",
		`<a href="javascript:alert(1)">bad</a> <img src="x" onerror="alert(1)">`,
		"",
		"<iframe src=\"https://evil.example\"></iframe><style>body{}</style>",
		"",
		"```go",
		`fmt.Println("hi")`,
		"```",
	}, "\n")

	out := New().RenderMarkdown(source)

	assert.Contains(t, out, "<h1>")
	assert.Contains(t, out, "<li>one</li>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, `class="language-go"`)
	assert.Contains(t, out, `class="hl-`)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "onerror")
	assert.NotContains(t, out, "<iframe")
	assert.NotContains(t, out, "<style")

	text := visibleText(t, out)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "docs")
	assert.Contains(t, text, `fmt.Println("hi")`)
}

func TestRenderMarkdownUsesFenceLanguage(t *testing.T) {
	out := New().RenderMarkdown("```go\nfunc main() {}\n```")

	assert.Contains(t, out, `<code class="language-go">`)
	assert.Contains(t, out, `<span class="hl-kd">func</span>`)
	assert.Contains(t, visibleText(t, out), "func main() {}")
}

func TestSanitizeKeepsOnlyLanguageClassOnCode(t *testing.T) {
	r := New()

	assert.Equal(t, `<pre><code class="language-go">x</code></pre>`,
		r.Sanitize(`<pre><code class="language-go">x</code></pre>`))
	assert.NotContains(t, r.Sanitize(`<pre><code class="evil">x</code></pre>`), "evil")
	assert.NotContains(t, r.Sanitize(`<pre><code class="language-go evil">x</code></pre>`), "evil")
	assert.NotContains(t, r.Sanitize(`<p class="language-go">x</p>`), "language-go")
}

func TestHighlightIsIdempotent(t *testing.T) {
	r := New()
	input := "<p>code:</p><pre><code class=\"language-python\">def f(x):\n    return x &lt; 2\n</code></pre>"

	once := r.Highlight(input)
	twice := r.Highlight(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, visibleText(t, input), visibleText(t, once))
	assert.Contains(t, once, `class="hl-`)
}

func TestHighlightWithoutLanguage(t *testing.T) {
	r := New()
	input := "<pre><code>SELECT * FROM messages;</code></pre>"
	out := r.Highlight(input)
	assert.Equal(t, "SELECT * FROM messages;", visibleText(t, out))
}

func TestHighlightLeavesInlineCode(t *testing.T) {
	r := New()
	input := "<p>use <code>go test</code></p>"
	assert.Equal(t, input, r.Highlight(input))
}

func TestBotMessageSanitizedOnRead(t *testing.T) {
	r := New()
	stored := `<p>ok</p><script>alert(1)</script><p onclick="x()">hi</p>`
	view := r.RenderMessage(botMessage(stored), "u1")

	assert.Contains(t, view.HTML, "<p>ok</p>")
	assert.NotContains(t, view.HTML, "<script")
	assert.NotContains(t, view.HTML, "onclick")
	assert.False(t, view.Mine)
}

func TestBotMessageKeepsHighlightSpans(t *testing.T) {
	r := New()
	stored := r.RenderMarkdown("```go\npackage main\n```")
	view := r.RenderMessage(botMessage(stored), "")
	assert.Equal(t, stored, view.HTML)
}

func TestUndecodableMessageDegrades(t *testing.T) {
	r := New()
	msgs := []model.Message{
		{ID: "bad", Text: "%zz<b>bold</b>", Sender: model.SenderBot, UserID: model.BotUserID},
		userMessage("fine"),
	}
	views := r.RenderList(msgs, "")
	require.Len(t, views, 2)
	assert.NotContains(t, views[0].HTML, "<b>")
	assert.Contains(t, views[0].HTML, "bold")
	assert.Equal(t, "fine", views[1].HTML)
}

func TestFormatTimestamp(t *testing.T) {
	r := New(WithLocation(time.UTC))
	ts := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, "07:08:09 05-03-2024", r.FormatTimestamp(&ts))
	assert.Equal(t, "", r.FormatTimestamp(nil))
}

func TestExpandShortcodes(t *testing.T) {
	assert.Equal(t, "😄 hi :nope:", ExpandShortcodes(":smile: hi :nope:"))
	assert.Equal(t, "12:30:45", ExpandShortcodes("12:30:45"))
}
