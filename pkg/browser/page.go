package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/dom"
	"github.com/entrhq/autofill/pkg/policy"
)

// ErrNoSnapshot is returned when a field is written before Document was
// called.
var ErrNoSnapshot = errors.New("page has no snapshot")

const (
	highlightJS = `(el) => { el.dataset.autofillOutline = el.style.outline; el.style.outline = "2px solid #4285f4"; }`
	unmarkJS    = `(el) => { el.style.outline = el.dataset.autofillOutline || ""; delete el.dataset.autofillOutline; }`
	filledJS    = `(el) => { el.style.backgroundColor = "#e8f0fe"; }`
)

// Page is a live page. Fields are collected from a snapshot of its DOM and
// written through selectors computed against that snapshot.
type Page struct {
	page playwright.Page

	mu  sync.Mutex
	doc *dom.Document
}

// PageOf wraps the session's page.
func (s *Session) PageOf() *Page {
	return &Page{page: s.Page}
}

// Site returns the host of the current URL.
func (p *Page) Site() string {
	return policy.Host(p.page.URL())
}

// Document snapshots the live DOM.
func (p *Page) Document(ctx context.Context) (*dom.Document, error) {
	content, err := p.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	doc, err := dom.ParseString(content)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return doc, nil
}

// Fill writes value into field. Playwright dispatches the input events.
func (p *Page) Fill(field *detector.Field, value string) error {
	loc, err := p.locate(field)
	if err != nil {
		return err
	}
	if err := loc.Fill(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	field.Node.SetValue(value)
	if _, err := loc.Evaluate(filledJS, nil); err != nil {
		return fmt.Errorf("failed to mark field: %w", err)
	}
	return nil
}

// Value reads the live value of field.
func (p *Page) Value(field *detector.Field) (string, error) {
	loc, err := p.locate(field)
	if err != nil {
		return "", err
	}
	if field.Node.IsContentEditable() {
		return loc.InnerText()
	}
	return loc.InputValue()
}

// Highlight outlines field until the returned func is called.
func (p *Page) Highlight(field *detector.Field) func() {
	loc, err := p.locate(field)
	if err != nil {
		return func() {}
	}
	if _, err := loc.Evaluate(highlightJS, nil); err != nil {
		return func() {}
	}
	return func() {
		_, _ = loc.Evaluate(unmarkJS, nil)
	}
}

func (p *Page) locate(field *detector.Field) (playwright.Locator, error) {
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	if doc == nil {
		return nil, ErrNoSnapshot
	}
	if field == nil || field.Node == nil || !doc.Root().Contains(field.Node) {
		return nil, fmt.Errorf("field is not part of the current snapshot")
	}
	sel := Selector(doc, field.Node)
	if sel == "" {
		return nil, fmt.Errorf("field has no selector")
	}
	return p.page.Locator(sel).First(), nil
}
