package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Parse reads an HTML document. Comments, doctypes and the content of
// script-like elements are dropped from the tree but kept in the source for
// Render.
func Parse(r io.Reader) (*Document, error) {
	src, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := &Node{Type: DocumentNode, src: src}
	convertChildren(src, root)
	return &Document{root: root, src: src}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func convertChildren(src *html.Node, parent *Node) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			tag := strings.ToLower(c.Data)
			if skippedElements[tag] {
				continue
			}
			n := &Node{Type: ElementNode, Tag: tag, src: c}
			for _, a := range c.Attr {
				n.Attrs = append(n.Attrs, Attribute{Key: strings.ToLower(a.Key), Val: a.Val})
			}
			adopt(parent, n)
			convertChildren(c, n)
		case html.TextNode:
			adopt(parent, &Node{Type: TextNode, Data: c.Data, src: c})
		}
	}
}

// skippedElements never appear in the tree.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Render writes the document, including recorded fills, as HTML.
func (d *Document) Render(w io.Writer) error {
	if d.src == nil {
		return fmt.Errorf("document was not parsed from HTML")
	}
	if err := html.Render(w, d.src); err != nil {
		return fmt.Errorf("failed to render HTML: %w", err)
	}
	return nil
}
