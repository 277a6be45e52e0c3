package dispatch

import (
	"strings"

	"github.com/samber/lo"

	"yogabot/internal/domain"
)

// FormatImageAnalysis renders tags and caption as two lines, with the tags
// written as a quoted list: "Tags: ['mat', 'pose']\nCaption: ...".
func FormatImageAnalysis(a domain.ImageAnalysis) string {
	return "Tags: " + quotedList(a.Tags) + "\nCaption: " + a.Caption
}

func quotedList(items []string) string {
	return "[" + strings.Join(lo.Map(items, func(s string, _ int) string { return quote(s) }), ", ") + "]"
}

// quote single-quotes s, switching to double quotes when s holds a single
// quote but no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteByte(q)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
