package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/dom"
)

const checkout = `<html><body>
<form id="login"><input name="user"><input type="password" name="pw"></form>
<div class="ship">
  <div><input name="street"></div>
  <div><input id="dup"><input id="dup"></div>
  <input id="say &quot;hi&quot;">
</div>
<div contenteditable="true"></div>
</body></html>`

func TestSelector(t *testing.T) {
	doc, err := dom.ParseString(checkout)
	require.NoError(t, err)
	fields := detector.Collect(doc, detector.Options{})
	require.Len(t, fields, 7)

	tests := []struct {
		index int
		want  string
	}{
		{0, `form[id="login"] > input:nth-of-type(1)`},
		{1, `form[id="login"] > input:nth-of-type(2)`},
		{2, `html > body:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > input:nth-of-type(1)`},
		{3, `html > body:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > input:nth-of-type(1)`},
		{4, `html > body:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > input:nth-of-type(2)`},
		{5, `input[id="say \"hi\""]`},
		{6, `html > body:nth-of-type(1) > div:nth-of-type(2)`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Selector(doc, fields[tt.index].Node), "field %d", tt.index)
	}
}

func TestSelector_NonElement(t *testing.T) {
	doc := dom.NewDocument(dom.Text("hello"))
	assert.Empty(t, Selector(doc, doc.Body().Children[0]))
}
