// Package codec holds the transport encoding applied to message text before it
// is written to a store. It mirrors encodeURIComponent/decodeURIComponent so
// that payloads written by browser clients and by this service are interchangeable.
package codec

import (
	"fmt"
	"net/url"
	"strings"
)

// QueryEscape also escapes the marks encodeURIComponent leaves alone.
var uriComponent = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// Encode percent-encodes raw. Spaces become %20, never '+', and the marks
// ! ' ( ) * stay literal.
func Encode(raw string) string {
	return uriComponent.Replace(url.QueryEscape(raw))
}

// Decode reverses Encode. A literal '+' is kept as is.
func Decode(encoded string) (string, error) {
	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("decode message text failed: %w", err)
	}
	return raw, nil
}
