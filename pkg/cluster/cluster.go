// Package cluster groups collected fields into page sections so they can be
// matched one section at a time.
package cluster

import (
	"sort"
	"strings"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/dom"
)

const (
	// MaxPasses caps the bubble-up phase.
	MaxPasses = 20

	// MaxSectionTextLength bounds each piece of section context.
	MaxSectionTextLength = 300

	sectionSeparator = "; "
)

// Cluster is a set of fields sharing a section root and nesting depth.
type Cluster struct {
	Root           *dom.Node
	Depth          int
	Fields         []*detector.Field
	SectionContext string
}

// MinIndex returns the smallest field index in the cluster.
func (c Cluster) MinIndex() int {
	if len(c.Fields) == 0 {
		return -1
	}
	return c.Fields[0].Index
}

// sectioningTags always start a new section.
var sectioningTags = map[string]bool{
	"form":     true,
	"fieldset": true,
	"section":  true,
	"article":  true,
	"aside":    true,
	"nav":      true,
	"main":     true,
	"header":   true,
	"footer":   true,
	"dialog":   true,
	"table":    true,
	"details":  true,
}

var sectioningRoles = map[string]bool{
	"form":   true,
	"group":  true,
	"region": true,
	"dialog": true,
}

var headingTags = map[string]bool{
	"h1":      true,
	"h2":      true,
	"h3":      true,
	"h4":      true,
	"h5":      true,
	"h6":      true,
	"legend":  true,
	"caption": true,
	"summary": true,
}

// IsBoundary reports whether n delimits a section: a sectioning element, a
// landmark role, or a container headed by a heading-like child.
func IsBoundary(n *dom.Node) bool {
	if !n.IsElement() {
		return false
	}
	if sectioningTags[n.Tag] || sectioningRoles[strings.ToLower(n.Attr("role"))] {
		return true
	}
	for _, c := range n.ElementChildren() {
		if headingTags[c.Tag] || strings.EqualFold(c.Attr("role"), "heading") {
			return true
		}
	}
	return false
}

func isPageRoot(n *dom.Node) bool {
	return n == nil || n.IsElement("body", "html") || n.ParentElement() == nil
}

// Group partitions fields into clusters. The input slice is not modified and
// the result is deterministic for one tree.
func Group(fields []*detector.Field) []Cluster {
	if len(fields) == 0 {
		return nil
	}

	ordered := make([]*detector.Field, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	owners := bubbleUp(ordered)

	type groupKey struct {
		root  *dom.Node
		depth int
	}
	var keys []groupKey
	groups := make(map[groupKey][]*detector.Field)
	byRoot := make(map[*dom.Node][]*detector.Field)
	var roots []*dom.Node

	for i, f := range ordered {
		root := owners[i]
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], f)

		k := groupKey{root: root, depth: f.Depth}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f)
	}

	contexts := make(map[*dom.Node]string, len(roots))
	for _, root := range roots {
		contexts[root] = SectionContext(root, byRoot[root])
	}

	clusters := make([]Cluster, 0, len(keys))
	for _, k := range keys {
		clusters = append(clusters, Cluster{
			Root:           k.root,
			Depth:          k.depth,
			Fields:         groups[k],
			SectionContext: contexts[k.root],
		})
	}

	// Keys are discovered in index order, but keep the ordering explicit.
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].MinIndex() < clusters[j].MinIndex() })
	return clusters
}

// bubbleUp returns the final owner of each field, parallel to fields.
func bubbleUp(fields []*detector.Field) []*dom.Node {
	owners := make([]*dom.Node, len(fields))
	for i, f := range fields {
		owners[i] = f.Node.ParentElement()
		if owners[i] == nil {
			owners[i] = f.Node
		}
	}

	for pass := 0; pass < MaxPasses; pass++ {
		next := make(map[*dom.Node]*dom.Node)
		for _, o := range owners {
			if _, seen := next[o]; seen {
				continue
			}
			if IsBoundary(o) || isPageRoot(o) {
				next[o] = o
				continue
			}
			next[o] = o.ParentElement()
		}

		changed := false
		for i, o := range owners {
			if n := next[o]; n != o {
				owners[i] = n
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return owners
}

// SectionContext joins the rendered text of root's direct children that hold
// none of the given fields.
func SectionContext(root *dom.Node, fields []*detector.Field) string {
	var pieces []string
	for _, c := range root.Children {
		if c.Type != dom.ElementNode && c.Type != dom.TextNode {
			continue
		}
		if containsAny(c, fields) {
			continue
		}

		var text string
		if c.Type == dom.TextNode {
			text = c.Data
		} else {
			text = c.RenderedText()
		}
		text = dom.Truncate(dom.CollapseSpace(text), MaxSectionTextLength)
		if text != "" {
			pieces = append(pieces, text)
		}
	}
	return strings.Join(pieces, sectionSeparator)
}

func containsAny(n *dom.Node, fields []*detector.Field) bool {
	for _, f := range fields {
		if n.Contains(f.Node) {
			return true
		}
	}
	return false
}
