package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Highlight re-tokenizes the text of every pre > code element and wraps the
// tokens in class spans. Only presentation markup is added; the text content
// is unchanged, so running it again produces the same output.
func (r *Renderer) Highlight(fragment string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("highlight failed")
			out = r.StripAll(fragment)
		}
	}()

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), container)
	if err != nil {
		r.log.Warn().Err(err).Msg("unparseable html fragment")
		return r.StripAll(fragment)
	}

	blocks := 0
	for _, n := range nodes {
		blocks += highlightBlocks(n)
	}
	if blocks == 0 {
		return fragment
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			r.log.Warn().Err(err).Msg("render highlighted html failed")
			return r.StripAll(fragment)
		}
	}
	return buf.String()
}

func highlightBlocks(n *html.Node) int {
	if n.Type == html.ElementNode && n.DataAtom == atom.Code &&
		n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.DataAtom == atom.Pre {
		highlightCodeNode(n)
		return 1
	}
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += highlightBlocks(c)
	}
	return count
}

func highlightCodeNode(code *html.Node) {
	source := textContent(code)
	tokens := tokenize(source, languageOf(code))

	for c := code.FirstChild; c != nil; {
		next := c.NextSibling
		code.RemoveChild(c)
		c = next
	}

	for _, tok := range tokens {
		text := &html.Node{Type: html.TextNode, Data: tok.Value}
		class := chroma.StandardTypes[tok.Type]
		if class == "" {
			code.AppendChild(text)
			continue
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr:     []html.Attribute{{Key: "class", Val: "hl-" + class}},
		}
		span.AppendChild(text)
		code.AppendChild(span)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// languageOf reads the "language-x" class goldmark puts on fenced blocks.
func languageOf(code *html.Node) string {
	for _, attr := range code.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, class := range strings.Fields(attr.Val) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok {
				return lang
			}
		}
	}
	return ""
}

func tokenize(source, language string) []chroma.Token {
	plain := []chroma.Token{{Type: chroma.Text, Value: source}}
	if source == "" {
		return nil
	}

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return plain
	}
	return alignTokens(source, iterator.Tokens(), plain)
}

// alignTokens trims whatever the lexer appended (a trailing newline for most
// lexers) so the token values concatenate back to exactly source.
func alignTokens(source string, tokens []chroma.Token, fallback []chroma.Token) []chroma.Token {
	out := make([]chroma.Token, 0, len(tokens))
	rest := source
	for _, tok := range tokens {
		if rest == "" {
			break
		}
		switch {
		case strings.HasPrefix(rest, tok.Value):
			rest = rest[len(tok.Value):]
		case strings.HasPrefix(tok.Value, rest):
			tok.Value = rest
			rest = ""
		default:
			return fallback
		}
		if tok.Value != "" {
			out = append(out, tok)
		}
	}
	if rest != "" {
		out = append(out, chroma.Token{Type: chroma.Text, Value: rest})
	}
	return out
}
