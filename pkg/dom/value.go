package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// IsContentEditable reports whether n itself opts into editing via the
// contenteditable attribute.
func (n *Node) IsContentEditable() bool {
	v, ok := n.LookupAttr("contenteditable")
	if !ok {
		return false
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "true" || v == "plaintext-only"
}

// Value returns the current value of an input-like node.
func (n *Node) Value() string {
	switch {
	case n.IsElement("input"):
		return n.Attr("value")
	case n.IsElement("textarea"):
		var b strings.Builder
		for _, c := range n.Children {
			if c.Type == TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	default:
		return n.RenderedText()
	}
}

// SetValue records a filled value. Inputs get a value attribute; textareas
// and content-editable regions have their children replaced by one text node.
func (n *Node) SetValue(v string) {
	if n.IsElement("input") {
		n.SetAttr("value", v)
		return
	}

	text := &Node{Type: TextNode, Data: v, Parent: n}
	n.Children = []*Node{text}

	if n.src != nil {
		for c := n.src.FirstChild; c != nil; {
			next := c.NextSibling
			n.src.RemoveChild(c)
			c = next
		}
		srcText := &html.Node{Type: html.TextNode, Data: v}
		n.src.AppendChild(srcText)
		text.src = srcText
	}
}
