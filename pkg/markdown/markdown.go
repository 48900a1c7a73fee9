package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	tagPattern   = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?/?>`)
	extraNewline = regexp.MustCompile(`\n{3,}`)

	allowedTags = map[string]bool{
		"p": true, "br": true, "hr": true, "strong": true, "em": true, "del": true,
		"code": true, "pre": true, "blockquote": true, "a": true,
		"ul": true, "ol": true, "li": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"table": true, "thead": true, "tbody": true, "tr": true, "th": true, "td": true,
	}
)

// ToHTML renders a generated answer for display in the panel. Raw HTML in the
// input is dropped and only a fixed set of formatting tags survives.
func ToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.SkipImages | blackfriday.Safelink |
			blackfriday.NofollowLinks | blackfriday.NoreferrerLinks | blackfriday.HrefTargetBlank,
	})
	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return cleanHTML(html)
}

func cleanHTML(html string) string {
	html = tagPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := tagPattern.FindStringSubmatch(match)
		if len(sub) > 1 && allowedTags[strings.ToLower(sub[1])] {
			return match
		}
		return ""
	})

	html = extraNewline.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
