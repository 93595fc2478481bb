package textproc

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var tagPattern = regexp.MustCompile(`(?i)<(html|body|div|p|table|br|span|h[1-6]|li|td)[\s>/]`)

// LooksLikeMarkup reports whether extracted text still carries HTML tags, which
// happens for manuals exported from web service portals.
func LooksLikeMarkup(text string) bool {
	return tagPattern.MatchString(text)
}

// StripMarkup returns the visible text of an HTML fragment with scripts,
// styles and page chrome removed. Text that does not look like markup is
// returned unchanged. Block elements are separated by newlines so sentence
// splitting still works on the result.
func StripMarkup(text string) string {
	if !LooksLikeMarkup(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()
	doc.Find("p, div, li, tr, br, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = CollapseSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
