package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector describes an element structurally so that it can be rendered as
// XPath for remote drivers and matched directly against a parsed document.
type Selector struct {
	Tag      string // element name; empty matches any
	Name     string // exact @name
	Attr     string // attribute checked with Contains
	Contains string
	Text     string // exact normalized text content
	Within   string // required ancestor element name
}

// ByName matches any element whose name attribute equals name.
func ByName(name string) Selector {
	return Selector{Name: name}
}

// PostLinks matches anchors pointing at individual posts.
var PostLinks = Selector{Tag: "a", Attr: "href", Contains: "/p/"}

// ArticleImage matches images nested in the post article.
var ArticleImage = Selector{Tag: "img", Within: "article"}

// CaptionHeading matches the heading that carries a post caption.
func CaptionHeading(class string) Selector {
	return Selector{Tag: "h1", Attr: "class", Contains: class}
}

// ButtonLabeled matches a button whose visible label equals label.
func ButtonLabeled(label string) Selector {
	return Selector{Tag: "button", Text: label}
}

func (s Selector) String() string {
	return s.XPath()
}

// XPath renders the selector as an XPath 1.0 expression.
func (s Selector) XPath() string {
	tag := s.Tag
	if tag == "" {
		tag = "*"
	}

	var b strings.Builder
	b.WriteString("//")
	if s.Within != "" {
		b.WriteString(s.Within)
		b.WriteString("//")
	}
	b.WriteString(tag)

	var preds []string
	if s.Name != "" {
		preds = append(preds, "@name="+xpathLiteral(s.Name))
	}
	if s.Attr != "" {
		preds = append(preds, fmt.Sprintf("contains(@%s, %s)", s.Attr, xpathLiteral(s.Contains)))
	}
	if s.Text != "" {
		preds = append(preds, "normalize-space(.)="+xpathLiteral(s.Text))
	}
	for _, p := range preds {
		b.WriteString("[")
		b.WriteString(p)
		b.WriteString("]")
	}
	return b.String()
}

func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// Match reports whether n satisfies the selector.
func (s Selector) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if s.Tag != "" && n.Data != s.Tag {
		return false
	}
	if s.Name != "" {
		if v, ok := attr(n, "name"); !ok || v != s.Name {
			return false
		}
	}
	if s.Attr != "" {
		v, ok := attr(n, s.Attr)
		if !ok || !strings.Contains(v, s.Contains) {
			return false
		}
	}
	if s.Text != "" && normalizeSpace(textContent(n)) != s.Text {
		return false
	}
	if s.Within != "" && !hasAncestor(n, s.Within) {
		return false
	}
	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAncestor(n *html.Node, tag string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
