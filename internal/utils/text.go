// Package utils holds small text helpers shared by the note and category
// handlers.
package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PreviewLength is the default preview size in characters.
const PreviewLength = 150

var (
	reScript     = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	reEventAttr  = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	reJSScheme   = regexp.MustCompile(`(?i)javascript:`)
	reDataScheme = regexp.MustCompile(`(?i)data:`)

	reCodeBlock  = regexp.MustCompile("(?s)```.*?```")
	reHeading    = regexp.MustCompile(`#{1,6}\s+`)
	reImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reBold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic     = regexp.MustCompile(`\*(.*?)\*`)
	reInlineCode = regexp.MustCompile("`(.*?)`")
	reNewlines   = regexp.MustCompile(`\n+`)
)

// Truncate trims s and cuts it to at most max characters.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// SanitizeHTML strips script elements, inline event handlers and
// javascript:/data: URLs from note content.  It is a blacklist, not an HTML
// parser; the browser renders notes as markdown.
func SanitizeHTML(s string) string {
	s = reScript.ReplaceAllString(s, "")
	s = reEventAttr.ReplaceAllString(s, "")
	s = reJSScheme.ReplaceAllString(s, "")
	return reDataScheme.ReplaceAllString(s, "")
}

// Preview renders markdown content as one line of plain text, at most max
// characters followed by "..." when cut.
func Preview(content string, max int) string {
	if content == "" {
		return ""
	}
	s := reCodeBlock.ReplaceAllString(content, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reImage.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$1")
	s = reItalic.ReplaceAllString(s, "$1")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(reNewlines.ReplaceAllString(s, " "))
	if utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max]) + "..."
	}
	return s
}
