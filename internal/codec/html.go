package codec

import (
	"html"
	"regexp"
	"strings"
)

var (
	brRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	pOpenRe = regexp.MustCompile(`(?i)<p[^>]*>`)
	pEndRe  = regexp.MustCompile(`(?i)</p>`)
	divRe   = regexp.MustCompile(`(?i)<div[^>]*>`)
	divEnd  = regexp.MustCompile(`(?i)</div>`)
	linkRe  = regexp.MustCompile(`(?i)<a[^>]*href=["']([^"']*)["'][^>]*>(.*?)</a>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

// htmlToText flattens an HTML fragment into plain text suitable for an
// iCalendar DESCRIPTION value. Links keep their target in parentheses.
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}

	text := html.UnescapeString(fragment)

	text = brRe.ReplaceAllString(text, "\n")
	text = pOpenRe.ReplaceAllString(text, "\n\n")
	text = pEndRe.ReplaceAllString(text, "")
	text = divRe.ReplaceAllString(text, "\n")
	text = divEnd.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$2 ($1)")
	text = tagRe.ReplaceAllString(text, "")

	text = nlRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
