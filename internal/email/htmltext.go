package email

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var htmlTagPattern = regexp.MustCompile(`<\s*[a-zA-Z!/]`)

// looksLikeHTML reports whether body appears to contain markup. Remote
// template copy may be HTML; the compiled-in copy is plain text.
func looksLikeHTML(body string) bool {
	return htmlTagPattern.MatchString(body)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "tr": true, "table": true,
	"blockquote": true, "header": true, "footer": true,
}

// PlainText converts an HTML body to the text/plain alternative part. Block
// elements become line breaks, anchor targets are kept in parentheses, and
// script/style content is dropped. Input without markup comes back unchanged
// apart from whitespace normalization.
func PlainText(src string) string {
	if !looksLikeHTML(src) {
		return src
	}

	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var b strings.Builder
	walkText(root, &b)

	out := b.String()
	out = regexp.MustCompile(`[ \t]+\n`).ReplaceAllString(out, "\n")
	out = regexp.MustCompile(`\n{3,}`).ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func walkText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head":
			return
		case "br":
			b.WriteString("\n")
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}

	if n.Type == html.ElementNode {
		if n.Data == "a" {
			if href := attrValue(n, "href"); href != "" && !strings.Contains(textContent(n), href) {
				b.WriteString(" (" + href + ")")
			}
		}
		if blockTags[n.Data] {
			b.WriteString("\n")
		}
	}
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
