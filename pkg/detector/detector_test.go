package detector

import (
	"strings"
	"testing"

	"github.com/entrhq/autofill/pkg/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupForm = `<html><body>
<form>
  <div><label>Email Address</label><input id="email" type="email"></div>
  <div><span>123-45</span><input id="code"></div>
  <div>Phone <input id="phone" type="tel" disabled></div>
  <div>Nick <input id="nick" readonly></div>
  <div style="display:none">Hidden <input id="ghost"></div>
  <input type="hidden" name="csrf" value="x">
  <input type="submit" value="Go">
  <input type="checkbox" id="agree">
  <textarea id="bio"></textarea>
  <div id="notes" contenteditable="true"><p contenteditable="true">inner</p></div>
  <fieldset disabled><input id="locked"></fieldset>
</form>
</body></html>`

func ids(fields []*Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Node.Attr("id")
	}
	return out
}

func TestCollect(t *testing.T) {
	doc, err := dom.ParseString(signupForm)
	require.NoError(t, err)

	fields := Collect(doc, Options{})
	assert.Equal(t, []string{"email", "code", "bio", "notes"}, ids(fields))
	for i, f := range fields {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, f.Node.Depth(), f.Depth)
	}
}

func TestCollect_IncludeCheckboxes(t *testing.T) {
	doc, err := dom.ParseString(signupForm)
	require.NoError(t, err)

	fields := Collect(doc, Options{IncludeCheckboxes: true})
	assert.Contains(t, ids(fields), "agree")
}

func TestContext(t *testing.T) {
	doc, err := dom.ParseString(signupForm)
	require.NoError(t, err)

	email := Context(doc.ByID("email"))
	assert.Contains(t, email, "ID: email")
	assert.Contains(t, email, "Type: email")
	assert.Contains(t, email, "Text Context: Email Address")
}

func TestAncestorText(t *testing.T) {
	t.Run("numeric-only text is skipped", func(t *testing.T) {
		doc := dom.NewDocument(
			dom.Element("section", nil,
				dom.Text("Verification"),
				dom.Element("div", nil,
					dom.Text("123-45"),
					dom.Element("input", map[string]string{"id": "code"}),
				),
			),
		)
		assert.Equal(t, "Verification 123-45", AncestorText(doc.ByID("code")))
	})

	t.Run("ideographic text qualifies", func(t *testing.T) {
		doc := dom.NewDocument(
			dom.Element("div", nil,
				dom.Text("电子邮件"),
				dom.Element("input", map[string]string{"id": "e"}),
			),
		)
		assert.Equal(t, "电子邮件", AncestorText(doc.ByID("e")))
	})

	t.Run("no qualifying ancestor yields empty context", func(t *testing.T) {
		doc := dom.NewDocument(
			dom.Element("div", nil,
				dom.Text("42"),
				dom.Element("input", nil),
			),
		)
		input := doc.Body().Find(func(n *dom.Node) bool { return n.IsElement("input") })
		assert.Equal(t, "", Context(input))

		fields := Collect(doc, Options{})
		require.Len(t, fields, 1)
		assert.Equal(t, "", fields[0].Context)
	})

	t.Run("text is collapsed and truncated", func(t *testing.T) {
		long := strings.Repeat("word ", 200)
		doc := dom.NewDocument(
			dom.Element("div", nil,
				dom.Text("  "+long+"\n\n"),
				dom.Element("input", map[string]string{"id": "x"}),
			),
		)
		got := AncestorText(doc.ByID("x"))
		assert.Len(t, []rune(got), MaxContextLength)
		assert.NotContains(t, got, "  ")
	})
}

func TestContext_LabelFor(t *testing.T) {
	doc, err := dom.ParseString(`<table><tr><td><label for="fn">First name</label></td><td><input id="fn"></td></tr></table>`)
	require.NoError(t, err)

	assert.Contains(t, Context(doc.ByID("fn")), "Label: First name")
}
