package gateway

import (
	"strings"

	"golang.org/x/net/html"
)

// DecodeTitle resolves HTML entity escapes that feed publishers leave in
// titles (&amp;, &#8217; and friends) and trims surrounding whitespace.
func DecodeTitle(title string) string {
	return strings.TrimSpace(html.UnescapeString(title))
}

// StripTags reduces an HTML fragment to plain text for list display. Block
// boundaries become single spaces, script and style bodies are dropped, and
// runs of whitespace collapse.
func StripTags(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var b strings.Builder
	var skip string // raw-text element we are currently inside

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// Tokenizer signals end of input with an error token.
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == "" {
				b.Write(tokenizer.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tt == html.StartTagToken && (tag == "script" || tag == "style") {
				skip = tag
			}
			switch tag {
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "blockquote":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == skip {
				skip = ""
			}
			b.WriteByte(' ')
		}
	}
}
