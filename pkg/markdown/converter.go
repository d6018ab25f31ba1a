package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// Tags a chat bubble renders. Everything else is stripped, keeping the
// inner text.
var allowedTags = []string{"p", "br", "b", "i", "u", "s", "code", "pre", "a", "ul", "ol", "li", "blockquote"}

var (
	headingPattern = regexp.MustCompile(`<h[1-6](?:\s[^>]*)?>(.*?)</h[1-6]>`)
	tagPattern     = regexp.MustCompile(`</?([a-zA-Z]+)(?:\s[^>]*)?>`)
	tagNamePattern = regexp.MustCompile(`</?([a-zA-Z]+)`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// ToHTML renders assistant markdown as HTML for web chat clients. Raw HTML
// and images in the input are dropped rather than passed through, and links
// are restricted to safe schemes.
func ToHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.SkipHTML | blackfriday.SkipImages |
			blackfriday.Safelink | blackfriday.NoreferrerLinks | blackfriday.HrefTargetBlank,
	})
	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer)))

	return sanitizeChatHTML(html)
}

func sanitizeChatHTML(html string) string {
	// Headings render too loud in a chat bubble. Demote them to bold lines.
	html = headingPattern.ReplaceAllString(html, "<p><b>$1</b></p>")

	html = strings.ReplaceAll(html, "<strong>", "<b>")
	html = strings.ReplaceAll(html, "</strong>", "</b>")
	html = strings.ReplaceAll(html, "<em>", "<i>")
	html = strings.ReplaceAll(html, "</em>", "</i>")
	html = strings.ReplaceAll(html, "<del>", "<s>")
	html = strings.ReplaceAll(html, "</del>", "</s>")

	html = tagPattern.ReplaceAllStringFunc(html, func(match string) string {
		m := tagNamePattern.FindStringSubmatch(match)
		if len(m) > 1 {
			name := strings.ToLower(m[1])
			for _, allowed := range allowedTags {
				if name == allowed {
					return match
				}
			}
		}
		return ""
	})

	html = blankRuns.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
