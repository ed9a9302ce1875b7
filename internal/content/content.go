package content

import (
	"bytes"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy     = bluemonday.UGCPolicy()
	namePolicy = bluemonday.StrictPolicy()
	markdown   = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
)

// Sanitize removes unsafe HTML from the input string using a UGC policy.
// It is used for rendered message previews.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// SanitizeName strips all markup from a display name, trims surrounding
// whitespace and caps it at maxLen runes. The result is plain text: the
// entities the strict policy emits are decoded again, so escaping stays
// with whoever renders the name.
func SanitizeName(name string, maxLen int) string {
	return Truncate(strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(name))), maxLen)
}

// Length returns the number of characters (runes) in s.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n runes without splitting a multi-byte character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RenderMarkdown converts a message body to sanitized HTML.
func RenderMarkdown(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return Sanitize(buf.String()), nil
}
