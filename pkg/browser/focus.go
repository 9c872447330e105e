package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/autofill/pkg/detector"
)

const (
	tagFieldJS   = `(el, i) => { el.dataset.autofillIndex = String(i); }`
	focusHookJS  = `() => { document.addEventListener("focusin", (e) => { const i = e.target && e.target.dataset ? e.target.dataset.autofillIndex : undefined; if (i !== undefined) window.autofillFocus(Number(i)); }, true); }`
	focusBinding = "autofillFocus"
)

// WatchFocus reports fields as they gain focus in the live page. The channel
// is closed when ctx is done. Focus events arriving while the receiver is
// busy are dropped.
func (p *Page) WatchFocus(ctx context.Context, fields []*detector.Field) (<-chan *detector.Field, error) {
	byIndex := make(map[int]*detector.Field, len(fields))
	for _, f := range fields {
		loc, err := p.locate(f)
		if err != nil {
			return nil, err
		}
		if _, err := loc.Evaluate(tagFieldJS, f.Index); err != nil {
			return nil, fmt.Errorf("failed to tag field %d: %w", f.Index, err)
		}
		byIndex[f.Index] = f
	}

	out := make(chan *detector.Field, 1)
	var (
		mu     sync.Mutex
		closed bool
	)

	err := p.page.ExposeFunction(focusBinding, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		idx, ok := args[0].(float64)
		if !ok {
			if n, isInt := args[0].(int); isInt {
				idx, ok = float64(n), true
			}
		}
		f := byIndex[int(idx)]
		if !ok || f == nil {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case out <- f:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expose focus binding: %w", err)
	}
	if _, err := p.page.Evaluate(focusHookJS); err != nil {
		return nil, fmt.Errorf("failed to install focus hook: %w", err)
	}

	go func() {
		<-ctx.Done()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
