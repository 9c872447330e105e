package browser

import (
	"fmt"
	"strings"

	"github.com/entrhq/autofill/pkg/dom"
)

// Selector returns a CSS selector that resolves to n in the live page the
// snapshot was taken from. Unique ids are used directly; otherwise the path is
// built from :nth-of-type steps up to the nearest uniquely identified
// ancestor or the <html> element.
func Selector(doc *dom.Document, n *dom.Node) string {
	if !n.IsElement() {
		return ""
	}

	var steps []string
	for cur := n; cur != nil && cur.IsElement(); cur = cur.ParentElement() {
		if id := cur.Attr("id"); id != "" && uniqueID(doc, id) {
			steps = append(steps, fmt.Sprintf(`%s[id="%s"]`, cur.Tag, escapeAttr(id)))
			break
		}
		if cur.Tag == "html" {
			steps = append(steps, "html")
			break
		}
		steps = append(steps, fmt.Sprintf("%s:nth-of-type(%d)", cur.Tag, nthOfType(cur)))
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

func nthOfType(n *dom.Node) int {
	parent := n.Parent
	if parent == nil {
		return 1
	}
	pos := 0
	for _, c := range parent.ElementChildren() {
		if c.Tag == n.Tag {
			pos++
		}
		if c == n {
			return pos
		}
	}
	return 1
}

func uniqueID(doc *dom.Document, id string) bool {
	count := 0
	doc.Root().Walk(func(c *dom.Node) bool {
		if c.IsElement() && c.Attr("id") == id {
			count++
		}
		return count < 2
	})
	return count == 1
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
