package dom

import (
	"strings"
	"unicode"
)

// RenderedText approximates the rendered text (innerText) of n: text of
// visible descendants, with block boundaries as newlines. Form control values
// are not included.
func (n *Node) RenderedText() string {
	var b strings.Builder
	n.writeText(&b)
	return strings.TrimSpace(b.String())
}

func (n *Node) writeText(b *strings.Builder) {
	switch n.Type {
	case TextNode:
		b.WriteString(n.Data)
		return
	case ElementNode:
		if n.hiddenSelf() || nonTextual[n.Tag] {
			return
		}
		if n.Tag == "br" {
			b.WriteString("\n")
			return
		}
	}

	block := n.Type == ElementNode && blockElements[n.Tag]
	if block {
		b.WriteString("\n")
	}
	for _, c := range n.Children {
		c.writeText(b)
		if c.IsElement("td", "th") {
			b.WriteString("\t")
		}
	}
	if block {
		b.WriteString("\n")
	}
}

// Visible reports whether n and all of its ancestors are rendered.
func (n *Node) Visible() bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type == ElementNode && c.hiddenSelf() {
			return false
		}
	}
	return true
}

func (n *Node) hiddenSelf() bool {
	if n.HasAttr("hidden") || strings.EqualFold(n.Attr("aria-hidden"), "true") {
		return true
	}
	if n.Tag == "input" && strings.EqualFold(n.Attr("type"), "hidden") {
		return true
	}
	style := strings.ToLower(strings.ReplaceAll(n.Attr("style"), " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// CollapseSpace replaces runs of whitespace with a single space and trims.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// HasLetter reports whether s contains at least one alphabetic or
// ideographic character.
func HasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// nonTextual elements never contribute rendered text.
var nonTextual = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"textarea": true,
	"select":   true,
	"iframe":   true,
	"object":   true,
	"svg":      true,
}

var blockElements = map[string]bool{
	"div":        true,
	"p":          true,
	"section":    true,
	"article":    true,
	"header":     true,
	"footer":     true,
	"nav":        true,
	"main":       true,
	"aside":      true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"ul":         true,
	"ol":         true,
	"li":         true,
	"table":      true,
	"tr":         true,
	"form":       true,
	"fieldset":   true,
	"legend":     true,
	"blockquote": true,
	"pre":        true,
	"dialog":     true,
	"details":    true,
	"summary":    true,
	"caption":    true,
}
