// Package dom provides the page tree the autofill engine works on.
//
// A Document is an immutable-shape snapshot of a page: every Node knows its
// parent, its children, its attributes and how its text would render. The
// detector and clusterer only ever read this tree; the only mutation is
// SetValue, which records a filled value on an input-like node.
//
// Documents come from two places:
//
//   - Parse, which reads static HTML through golang.org/x/net/html
//   - NewDocument and Element/Text, which build synthetic trees for tests
//
// Example:
//
//	doc, err := dom.Parse(strings.NewReader(`<form><label>Email <input name="email"></label></form>`))
//	if err != nil {
//	    return err
//	}
//	for _, n := range doc.Body().FindAll(func(n *dom.Node) bool { return n.Tag == "input" }) {
//	    fmt.Println(n.Attr("name"), n.Depth())
//	}
package dom
