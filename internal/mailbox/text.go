// Package mailbox holds text-normalization helpers shared by the mailbox
// adapters. Every provider funnels message bodies through these before the
// text reaches the classifier.
package mailbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText strips markup from an HTML body, dropping script and style
// content entirely.
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()

	return CollapseWhitespace(doc.Text())
}

// CollapseWhitespace folds all whitespace runs into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps s at maxChars runes.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

// MatchesAnyKeyword reports whether text contains any of the keywords,
// case-insensitively.
func MatchesAnyKeyword(text string, keywords []string) bool {
	folded := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(folded, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
