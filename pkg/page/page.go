// Package page is an in-memory page backed by a parsed HTML document. It is
// used for offline runs against saved pages and as the test double for live
// browser pages.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/dom"
	"github.com/entrhq/autofill/pkg/types"
)

// ErrDetached is returned when a field does not belong to the page.
var ErrDetached = errors.New("field is not attached to this page")

// Static is a page held in memory.
type Static struct {
	site string
	doc  *dom.Document

	mu     sync.Mutex
	events []types.FillEvent
}

// New wraps doc as a page on site.
func New(site string, doc *dom.Document) *Static {
	return &Static{site: site, doc: doc}
}

// Load parses r as a page on site.
func Load(site string, r io.Reader) (*Static, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return New(site, doc), nil
}

// Open parses the HTML file at path.
func Open(site, path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return Load(site, f)
}

// Site returns the page host.
func (p *Static) Site() string {
	return p.site
}

// Document returns the live document. Fills are visible through it.
func (p *Static) Document(ctx context.Context) (*dom.Document, error) {
	return p.doc, nil
}

// Fill writes value into field and records an input event.
func (p *Static) Fill(field *detector.Field, value string) error {
	if field == nil || field.Node == nil || !p.doc.Root().Contains(field.Node) {
		return ErrDetached
	}
	field.Node.SetValue(value)
	p.record(types.FillEvent{Type: types.EventInput, FieldIndex: field.Index, Value: value})
	p.record(types.FillEvent{Type: types.EventChange, FieldIndex: field.Index, Value: value})
	return nil
}

// Append adds text to the end of field's value and records an input event
// only. Call Commit once the last chunk is written.
func (p *Static) Append(field *detector.Field, text string) error {
	if field == nil || field.Node == nil || !p.doc.Root().Contains(field.Node) {
		return ErrDetached
	}
	v := field.Node.Value() + text
	field.Node.SetValue(v)
	p.record(types.FillEvent{Type: types.EventInput, FieldIndex: field.Index, Value: v})
	return nil
}

// Commit records a change event for field.
func (p *Static) Commit(field *detector.Field) error {
	if field == nil || field.Node == nil || !p.doc.Root().Contains(field.Node) {
		return ErrDetached
	}
	p.record(types.FillEvent{Type: types.EventChange, FieldIndex: field.Index, Value: field.Node.Value()})
	return nil
}

// Value returns the current value of field.
func (p *Static) Value(field *detector.Field) (string, error) {
	if field == nil || field.Node == nil || !p.doc.Root().Contains(field.Node) {
		return "", ErrDetached
	}
	return field.Node.Value(), nil
}

// Events returns the events dispatched so far.
func (p *Static) Events() []types.FillEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.FillEvent(nil), p.events...)
}

// Render serialises the current document.
func (p *Static) Render(w io.Writer) error {
	return p.doc.Render(w)
}

// HTML returns the current document as a string.
func (p *Static) HTML() string {
	var buf bytes.Buffer
	if err := p.doc.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func (p *Static) record(ev types.FillEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}
