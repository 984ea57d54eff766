package render

import (
	"regexp"

	"github.com/yuin/goldmark-emoji/definition"
)

var (
	shortcodePattern = regexp.MustCompile(`:[a-z0-9_+\-]+:`)
	emojiTable       = definition.Github()
)

// ExpandShortcodes swaps known ":name:" shortcodes for their unicode emoji.
// Unknown shortcodes are kept verbatim.
func ExpandShortcodes(text string) string {
	return shortcodePattern.ReplaceAllStringFunc(text, func(code string) string {
		e, ok := emojiTable.Get(code[1 : len(code)-1])
		if !ok || e == nil || len(e.Unicode) == 0 {
			return code
		}
		return string(e.Unicode)
	})
}
