package autofill

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/strategy"
	"github.com/entrhq/autofill/pkg/types"
)

// DefaultDebounce is how long a field must keep focus before it is matched.
const DefaultDebounce = 300 * time.Millisecond

// FocusEvent reports that a field gained focus.
type FocusEvent struct {
	Field *detector.Field
}

// Suggestion is a background match for a focused field.
type Suggestion struct {
	Field *detector.Field
	Key   string
}

// SilentMatcher matches focused fields in the background without filling
// them.
type SilentMatcher struct {
	matcher  strategy.Matcher
	items    []types.PersonalInfoItem
	debounce time.Duration
	logger   *logging.Logger

	locks lockSet
}

// SilentOption configures a SilentMatcher.
type SilentOption func(*SilentMatcher)

// WithDebounce sets the focus debounce.
func WithDebounce(d time.Duration) SilentOption {
	return func(s *SilentMatcher) {
		s.debounce = d
	}
}

// WithSilentLogger sets the logger.
func WithSilentLogger(l *logging.Logger) SilentOption {
	return func(s *SilentMatcher) {
		s.logger = l
	}
}

// NewSilentMatcher returns a matcher suggesting keys from items.
func NewSilentMatcher(m strategy.Matcher, items []types.PersonalInfoItem, opts ...SilentOption) *SilentMatcher {
	s := &SilentMatcher{
		matcher:  m,
		items:    items,
		debounce: DefaultDebounce,
		logger:   logging.Nop(),
		locks:    lockSet{held: make(map[int]struct{})},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes events until the channel closes or ctx is done. The returned
// channel is closed once every pending match has finished.
func (s *SilentMatcher) Run(ctx context.Context, events <-chan FocusEvent) <-chan Suggestion {
	out := make(chan Suggestion)

	go func() {
		var wg sync.WaitGroup
		timers := make(map[int]*time.Timer)

		defer func() {
			for _, t := range timers {
				if t.Stop() {
					wg.Done()
				}
			}
			wg.Wait()
			close(out)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Field == nil {
					continue
				}
				field := ev.Field
				if t, ok := timers[field.Index]; ok && t.Stop() {
					wg.Done()
				}
				wg.Add(1)
				timers[field.Index] = time.AfterFunc(s.debounce, func() {
					defer wg.Done()
					s.match(ctx, field, out)
				})
			}
		}
	}()
	return out
}

func (s *SilentMatcher) match(ctx context.Context, field *detector.Field, out chan<- Suggestion) {
	if ctx.Err() != nil {
		return
	}
	if !s.locks.tryLock(field.Index) {
		s.logger.Debugf("Field %d already matching, skipped", field.Index)
		return
	}
	defer s.locks.unlock(field.Index)

	batch := []types.FieldRequest{{ID: field.Index, Context: field.Context}}
	for _, r := range s.matcher.Match(ctx, batch, s.items) {
		if r.FieldID != field.Index || !r.Matched() {
			continue
		}
		select {
		case out <- Suggestion{Field: field, Key: r.Key()}:
		case <-ctx.Done():
		}
		return
	}
}

// lockSet holds the fields currently being matched.
type lockSet struct {
	mu   sync.Mutex
	held map[int]struct{}
}

func (l *lockSet) tryLock(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

func (l *lockSet) unlock(id int) {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
}
