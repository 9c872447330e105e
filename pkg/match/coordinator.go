// Package match asks a language model which vault key belongs in which form
// field.
//
// The Coordinator never fails a run: provider and parse errors are logged and
// the affected batch yields no results, which callers treat as "do not fill".
package match

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/llm/tokenizer"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/match/ondevice"
	"github.com/entrhq/autofill/pkg/types"
)

// DefaultCallTimeout bounds one provider call.
const DefaultCallTimeout = 60 * time.Second

// Coordinator is safe for concurrent use.
type Coordinator struct {
	provider    Provider
	logger      *logging.Logger
	cache       *matchCache
	cacheSize   int
	budget      int
	callTimeout time.Duration

	countOnce sync.Once
	count     func(string) int

	calls atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithCacheSize sets the cache capacity. Zero disables the cache. The cache
// is only used with the on-device provider.
func WithCacheSize(n int) Option {
	return func(c *Coordinator) {
		c.cacheSize = n
	}
}

// WithBudget splits batches whose prompt exceeds tokens. Zero disables
// splitting.
func WithBudget(tokens int) Option {
	return func(c *Coordinator) {
		c.budget = tokens
	}
}

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(count func(string) int) Option {
	return func(c *Coordinator) {
		c.count = count
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.callTimeout = d
	}
}

// New returns a coordinator over provider.
func New(provider Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider:    provider,
		logger:      logging.Nop(),
		cacheSize:   DefaultCacheSize,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cacheSize > 0 && provider.Name() == ondevice.Name {
		cache, err := newMatchCache(c.cacheSize)
		if err != nil {
			c.logger.Warnf("Match cache disabled: %v", err)
		} else {
			c.cache = cache
		}
	}
	return c
}

// Provider returns the provider in use.
func (c *Coordinator) Provider() Provider {
	return c.provider
}

// Calls returns how many provider calls have been made.
func (c *Coordinator) Calls() int64 {
	return c.calls.Load()
}

// Close purges the cache.
func (c *Coordinator) Close() {
	c.cache.purge()
}

// Match returns results for batch in response order. Fields the model left
// out have no result. Cancellation of ctx is honoured between provider
// calls; a call already sent runs to completion.
func (c *Coordinator) Match(ctx context.Context, batch []types.FieldRequest, candidates []types.PersonalInfoItem) []types.MatchResult {
	if len(batch) == 0 || len(candidates) == 0 {
		return nil
	}

	class := classOf(candidates)
	results, pending := c.fromCache(batch, candidates, class)
	if len(pending) == 0 {
		return results
	}

	for _, sub := range c.split(pending, candidates) {
		if ctx.Err() != nil {
			c.logger.Debugf("Match cancelled with %d fields pending", len(sub))
			break
		}

		matches, err := c.infer(ctx, sub, candidates)
		if err != nil {
			c.logger.Errorf("Matching %d fields failed: %v", len(sub), err)
			continue
		}

		subResults := applyNullPolicy(matches, sub, candidates)
		c.remember(sub, subResults, class)
		results = append(results, subResults...)
	}
	return results
}

func (c *Coordinator) fromCache(batch []types.FieldRequest, candidates []types.PersonalInfoItem, class sensitivity) ([]types.MatchResult, []types.FieldRequest) {
	if c.cache == nil {
		return nil, batch
	}

	var (
		results []types.MatchResult
		pending []types.FieldRequest
	)
	for _, f := range batch {
		key, ok := c.cache.get(f.Context, class)
		if ok {
			if _, known := types.FindItem(candidates, key); known {
				results = append(results, types.MatchResult{FieldID: f.ID, MatchedKey: types.KeyPtr(key)})
				continue
			}
		}
		pending = append(pending, f)
	}
	if len(results) > 0 {
		c.logger.Debugf("Answered %d fields from cache", len(results))
	}
	return results, pending
}

func (c *Coordinator) remember(batch []types.FieldRequest, results []types.MatchResult, class sensitivity) {
	if c.cache == nil {
		return
	}
	contexts := make(map[int]string, len(batch))
	for _, f := range batch {
		contexts[f.ID] = f.Context
	}
	for _, r := range results {
		if r.Matched() {
			c.cache.put(contexts[r.FieldID], class, r.Key())
		}
	}
}

// infer runs one constrained call and, if the endpoint rejects the schema or
// the constrained output does not parse, one unconstrained retry.
func (c *Coordinator) infer(ctx context.Context, batch []types.FieldRequest, candidates []types.PersonalInfoItem) ([]rawMatch, error) {
	prompt := BuildPrompt(batch, candidates)
	schema := Schema()

	out, err := c.call(ctx, prompt, &schema)
	if err == nil {
		matches, parseErr := parseStrict(out)
		if parseErr == nil {
			return matches, nil
		}
		err = &ProviderError{Kind: KindSchema, Err: parseErr}
	}

	pe := classify(err)
	if pe.Kind != KindSchema {
		return nil, pe
	}
	c.logger.Warnf("Constrained call failed, retrying without schema: %v", pe.Err)

	out, err = c.call(ctx, prompt, nil)
	if err != nil {
		return nil, classify(err)
	}
	matches, err := parseLenient(out)
	if err != nil {
		return nil, &ProviderError{Kind: KindSchema, Err: err}
	}
	return matches, nil
}

func (c *Coordinator) call(ctx context.Context, prompt llm.Prompt, schema *llm.Schema) (string, error) {
	c.calls.Add(1)

	callCtx := context.WithoutCancel(ctx)
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.provider.Infer(callCtx, prompt, schema)
	c.logger.Debugf("%s call took %s (schema=%t)", c.provider.Name(), time.Since(start).Round(time.Millisecond), schema != nil)
	return out, err
}

// split cuts batch into consecutive sub-batches whose prompts fit the
// budget. A single field over budget is sent alone.
func (c *Coordinator) split(batch []types.FieldRequest, candidates []types.PersonalInfoItem) [][]types.FieldRequest {
	if c.budget <= 0 || len(batch) <= 1 {
		return [][]types.FieldRequest{batch}
	}

	count := c.counter()
	if tokensOf(count, BuildPrompt(batch, candidates)) <= c.budget {
		return [][]types.FieldRequest{batch}
	}

	var (
		subs    [][]types.FieldRequest
		current []types.FieldRequest
	)
	for _, f := range batch {
		next := append(append([]types.FieldRequest(nil), current...), f)
		if len(current) > 0 && tokensOf(count, BuildPrompt(next, candidates)) > c.budget {
			subs = append(subs, current)
			current = []types.FieldRequest{f}
			continue
		}
		current = next
	}
	if len(current) > 0 {
		subs = append(subs, current)
	}
	c.logger.Debugf("Split %d fields into %d batches for a %d token budget", len(batch), len(subs), c.budget)
	return subs
}

func (c *Coordinator) counter() func(string) int {
	c.countOnce.Do(func() {
		if c.count != nil {
			return
		}
		tok, err := tokenizer.New()
		if err != nil {
			c.logger.Warnf("Falling back to estimated token counts: %v", err)
		}
		c.count = tok.CountTokens
	})
	return c.count
}

func tokensOf(count func(string) int, p llm.Prompt) int {
	return count(p.System) + count(p.User)
}
