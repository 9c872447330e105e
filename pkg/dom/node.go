package dom

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// NodeType identifies the kind of a Node.
type NodeType int

const (
	// DocumentNode is the tree root above <html>.
	DocumentNode NodeType = iota
	// ElementNode is an HTML element.
	ElementNode
	// TextNode is a run of character data.
	TextNode
)

// Attribute is a single element attribute.
type Attribute struct {
	Key string
	Val string
}

// Node is one node of a page tree.
type Node struct {
	Type     NodeType
	Tag      string // lower-case tag name for elements
	Data     string // character data for text nodes
	Attrs    []Attribute
	Parent   *Node
	Children []*Node

	// src is the parsed html node, kept so fills can be rendered back.
	src *html.Node
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(key string) string {
	v, _ := n.LookupAttr(key)
	return v
}

// LookupAttr returns the value of the named attribute and whether it exists.
func (n *Node) LookupAttr(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.LookupAttr(key)
	return ok
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(key, val string) {
	key = strings.ToLower(key)
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Val = val
			n.syncSrcAttr(key, val)
			return
		}
	}
	n.Attrs = append(n.Attrs, Attribute{Key: key, Val: val})
	n.syncSrcAttr(key, val)
}

func (n *Node) syncSrcAttr(key, val string) {
	if n.src == nil {
		return
	}
	for i := range n.src.Attr {
		if n.src.Attr[i].Key == key {
			n.src.Attr[i].Val = val
			return
		}
	}
	n.src.Attr = append(n.src.Attr, html.Attribute{Key: key, Val: val})
}

// IsElement reports whether n is an element with one of the given tags.
// With no tags it reports whether n is an element at all.
func (n *Node) IsElement(tags ...string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Tag == t {
			return true
		}
	}
	return false
}

// ElementChildren returns the element children of n in document order.
func (n *Node) ElementChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// ParentElement returns the nearest element ancestor, or nil.
func (n *Node) ParentElement() *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == ElementNode {
			return p
		}
	}
	return nil
}

// Depth returns the number of element ancestors of n. The <html> element has
// depth 0.
func (n *Node) Depth() int {
	depth := 0
	for p := n.ParentElement(); p != nil; p = p.ParentElement() {
		depth++
	}
	return depth
}

// Contains reports whether other is n or a descendant of n.
func (n *Node) Contains(other *Node) bool {
	for c := other; c != nil; c = c.Parent {
		if c == n {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns the descendants of n (including n) matching pred, in
// document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Find returns the first node matching pred, or nil.
func (n *Node) Find(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// Document is a parsed or synthetic page tree.
type Document struct {
	root *Node
	src  *html.Node
}

// Root returns the <html> element, the document root for clustering.
func (d *Document) Root() *Node {
	for _, c := range d.root.Children {
		if c.IsElement("html") {
			return c
		}
	}
	return d.root
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *Node {
	root := d.Root()
	for _, c := range root.Children {
		if c.IsElement("body") {
			return c
		}
	}
	return root
}

// ByID returns the first element with the given id attribute.
func (d *Document) ByID(id string) *Node {
	return d.root.Find(func(n *Node) bool {
		return n.Type == ElementNode && n.Attr("id") == id
	})
}

// NewDocument wraps body children in <html><body>.
func NewDocument(bodyChildren ...*Node) *Document {
	body := Element("body", nil, bodyChildren...)
	htmlEl := Element("html", nil, body)
	root := &Node{Type: DocumentNode}
	adopt(root, htmlEl)
	return &Document{root: root}
}

// Element builds an element node for synthetic trees. Attributes are stored in
// key order so builds are deterministic.
func Element(tag string, attrs map[string]string, children ...*Node) *Node {
	n := &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attrs = append(n.Attrs, Attribute{Key: strings.ToLower(k), Val: attrs[k]})
	}
	for _, c := range children {
		adopt(n, c)
	}
	return n
}

// Text builds a text node for synthetic trees.
func Text(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

func adopt(parent, child *Node) {
	child.Parent = parent
	parent.Children = append(parent.Children, child)
}
