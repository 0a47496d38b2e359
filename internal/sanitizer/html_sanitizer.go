// Package sanitizer cleans submitted text before it is placed in
// notification mail HTML.
package sanitizer

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer sanitizes submitter-controlled content for mail bodies.
type HTMLSanitizer interface {
	// Text strips all markup from s and returns it HTML-escaped.
	Text(s string) string
	// Message keeps only the formatting a notification mail uses.
	Message(html string) string
}

// DefaultHTMLSanitizer implements HTMLSanitizer using bluemonday
type DefaultHTMLSanitizer struct {
	text    *bluemonday.Policy
	message *bluemonday.Policy
}

// NewHTMLSanitizer creates a sanitizer with the mail message policy
func NewHTMLSanitizer() *DefaultHTMLSanitizer {
	message := bluemonday.NewPolicy()
	message.AllowElements("b", "strong", "em", "i", "br", "p", "div", "span")
	message.AllowAttrs("href").OnElements("a")
	message.AllowURLSchemes("http", "https", "mailto")
	message.RequireParseableURLs(true)
	message.RequireNoFollowOnLinks(true)

	return &DefaultHTMLSanitizer{
		text:    bluemonday.StrictPolicy(),
		message: message,
	}
}

var scriptBlock = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)

// Text strips all markup, including script bodies, and escapes the rest.
func (s *DefaultHTMLSanitizer) Text(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(s.text.Sanitize(scriptBlock.ReplaceAllString(in, "")))
}

// Message applies the mail message policy.
func (s *DefaultHTMLSanitizer) Message(html string) string {
	if html == "" {
		return ""
	}
	return s.message.Sanitize(scriptBlock.ReplaceAllString(html, ""))
}
