// Package encoding provides shared text escaping and normalization utilities.
package encoding

import (
	"strings"
	"unicode"
)

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
	newlines    = strings.NewReplacer("\r", "", "\n", "")
)

// EscapeHTML escapes & < > and " for HTML text content.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }

// EscapeAttr additionally escapes single quotes, for attribute values.
func EscapeAttr(s string) string { return attrEscaper.Replace(s) }

// StripNewlines removes CR and LF without touching other whitespace.
func StripNewlines(s string) string { return newlines.Replace(s) }

// NormalizeSpace collapses runs of whitespace to a single space and trims
// the result.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Slugify lowercases s and replaces every run of non-alphanumeric runes
// with a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
