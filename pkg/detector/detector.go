// Package detector discovers fillable fields on a page and derives the
// textual context the matcher reasons about.
package detector

import (
	"fmt"
	"strings"

	"github.com/entrhq/autofill/pkg/dom"
)

// MaxContextLength bounds the ancestor text taken into a field context.
const MaxContextLength = 300

// Field is one fillable element found during a run.
type Field struct {
	Node    *dom.Node
	Context string
	Index   int
	Depth   int
}

// Options tunes which controls are collected.
type Options struct {
	// IncludeCheckboxes collects checkbox inputs as well.
	IncludeCheckboxes bool
}

// excludedInputTypes are never data-entry controls.
var excludedInputTypes = map[string]bool{
	"hidden":   true,
	"submit":   true,
	"button":   true,
	"reset":    true,
	"image":    true,
	"file":     true,
	"checkbox": true,
	"radio":    true,
	"range":    true,
	"color":    true,
}

// Collect returns the fillable fields of doc in document order, each with its
// context computed.
func Collect(doc *dom.Document, opts Options) []*Field {
	var fields []*Field

	doc.Body().Walk(func(n *dom.Node) bool {
		if n.Type != dom.ElementNode {
			return true
		}
		if !IsFillable(n, opts) {
			return true
		}

		f := &Field{
			Node:  n,
			Index: len(fields),
			Depth: n.Depth(),
		}
		f.Context = Context(n)
		fields = append(fields, f)

		// Nested editables belong to the outer content-editable region.
		return !n.IsContentEditable()
	})

	return fields
}

// IsFillable reports whether n is a visible, enabled, editable data control.
func IsFillable(n *dom.Node, opts Options) bool {
	switch {
	case n.IsElement("input"):
		typ := strings.ToLower(strings.TrimSpace(n.Attr("type")))
		if typ == "checkbox" && opts.IncludeCheckboxes {
			break
		}
		if excludedInputTypes[typ] {
			return false
		}
	case n.IsElement("textarea"):
	case n.IsContentEditable():
		if p := n.ParentElement(); p != nil && insideEditable(p) {
			return false
		}
	default:
		return false
	}

	if n.HasAttr("disabled") || n.HasAttr("readonly") {
		return false
	}
	if strings.EqualFold(n.Attr("aria-disabled"), "true") {
		return false
	}
	if insideDisabledFieldset(n) {
		return false
	}
	return n.Visible()
}

func insideEditable(n *dom.Node) bool {
	for c := n; c != nil; c = c.ParentElement() {
		if c.IsContentEditable() {
			return true
		}
	}
	return false
}

func insideDisabledFieldset(n *dom.Node) bool {
	for p := n.ParentElement(); p != nil; p = p.ParentElement() {
		if p.IsElement("fieldset") && p.HasAttr("disabled") {
			return true
		}
	}
	return false
}

// Context builds the matcher context for a field: attribute hints followed by
// the text of the nearest ancestor that carries letters.
func Context(n *dom.Node) string {
	var parts []string

	if v := n.Attr("placeholder"); v != "" {
		parts = append(parts, fmt.Sprintf("Placeholder: %s", v))
	}
	if v := n.Attr("name"); v != "" {
		parts = append(parts, fmt.Sprintf("Name: %s", v))
	}
	if v := n.Attr("id"); v != "" {
		parts = append(parts, fmt.Sprintf("ID: %s", v))
	}
	if v := n.Attr("type"); v != "" {
		parts = append(parts, fmt.Sprintf("Type: %s", v))
	}
	if v := n.Attr("aria-label"); v != "" {
		parts = append(parts, fmt.Sprintf("Label: %s", v))
	} else if v := labelFor(n); v != "" {
		parts = append(parts, fmt.Sprintf("Label: %s", v))
	}

	if text := AncestorText(n); text != "" {
		parts = append(parts, "Text Context: "+text)
	}

	return strings.Join(parts, " | ")
}

// AncestorText walks outward from n and returns the collapsed, truncated text
// of the first ancestor whose rendered text contains a letter. The walk stops
// at <body>.
func AncestorText(n *dom.Node) string {
	for cur := n.ParentElement(); cur != nil && !cur.IsElement("body", "html"); cur = cur.ParentElement() {
		text := dom.CollapseSpace(cur.RenderedText())
		if text == "" || !dom.HasLetter(text) {
			continue
		}
		return dom.Truncate(text, MaxContextLength)
	}
	return ""
}

// labelFor finds a <label for=id> outside the field's own ancestors.
func labelFor(n *dom.Node) string {
	id := n.Attr("id")
	if id == "" {
		return ""
	}

	root := n
	for p := n.Parent; p != nil; p = p.Parent {
		root = p
	}

	label := root.Find(func(c *dom.Node) bool {
		return c.IsElement("label") && c.Attr("for") == id && !c.Contains(n)
	})
	if label == nil {
		return ""
	}
	return dom.Truncate(dom.CollapseSpace(label.RenderedText()), MaxContextLength)
}
