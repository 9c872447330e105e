package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/types"
)

type reply struct {
	out string
	err error
}

type scriptedProvider struct {
	name    string
	onCall  func(ctx context.Context)
	mu      sync.Mutex
	replies []reply
	prompts []llm.Prompt
	schemas []bool
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Infer(ctx context.Context, prompt llm.Prompt, schema *llm.Schema) (string, error) {
	if p.onCall != nil {
		p.onCall(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.schemas = append(p.schemas, schema != nil)
	if len(p.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r.out, r.err
}

func ok(out string) reply { return reply{out: out} }

var candidates = []types.PersonalInfoItem{
	{Keyname: "email", Description: "personal email", Value: types.PlainValue("a@b.com")},
	{Keyname: "full_name", Description: "full legal name", Value: types.PlainValue("Ada Lovelace")},
}

var secretCandidates = append(append([]types.PersonalInfoItem(nil), candidates...),
	types.PersonalInfoItem{Keyname: "ssn", Description: "social security number", IsSecret: true, FakeValue: "000-00-0000"})

func fields(contexts ...string) []types.FieldRequest {
	out := make([]types.FieldRequest, len(contexts))
	for i, c := range contexts {
		out[i] = types.FieldRequest{ID: i, Context: c}
	}
	return out
}

func keys(results []types.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = fmt.Sprintf("%d=%s", r.FieldID, r.Key())
	}
	return out
}

func TestCoordinator_NullPolicy(t *testing.T) {
	p := &scriptedProvider{name: "remote", replies: []reply{ok(`{"matches":[
		{"inputId":1,"matchedKey":"full_name"},
		{"inputId":99,"matchedKey":"email"},
		{"inputId":0,"matchedKey":"email"},
		{"inputId":1,"matchedKey":"email"},
		{"inputId":"2","matchedKey":"phone"},
		{"inputId":3,"matchedKey":""},
		{"inputId":4}
	]}`)}}
	c := New(p)

	results := c.Match(context.Background(), fields("Name", "Email", "Phone", "Notes", "Other"), candidates)
	assert.Equal(t, []string{"1=full_name", "0=email", "2=", "3=", "4="}, keys(results))
	for _, r := range results[2:] {
		assert.Nil(t, r.MatchedKey)
	}
	assert.Equal(t, []bool{true}, p.schemas)
	assert.EqualValues(t, 1, c.Calls())
}

func TestCoordinator_SchemaRetry(t *testing.T) {
	lenient := "<thinking>the first looks like mail</thinking>\n```json\n{\"matches\":[{\"inputId\":0,\"matchedKey\":\"email\"}]}\n```"

	tests := []struct {
		name  string
		first reply
	}{
		{"rejected constraint", reply{err: fmt.Errorf("wrapped: %w", llm.ErrSchemaRejected)}},
		{"unparseable constrained output", ok("Sure! Here you go")},
		{"missing matches array", ok(`{"results":[]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{name: "remote", replies: []reply{tt.first, ok(lenient)}}
			results := New(p).Match(context.Background(), fields("Email"), candidates)
			assert.Equal(t, []string{"0=email"}, keys(results))
			assert.Equal(t, []bool{true, false}, p.schemas)
		})
	}
}

func TestCoordinator_FailuresYieldNothing(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
		calls   int64
	}{
		{"transport", []reply{{err: errors.New("connection refused")}}, 1},
		{"status", []reply{{err: &llm.StatusError{StatusCode: 500, Body: "oops"}}}, 1},
		{"retry fails", []reply{{err: llm.ErrSchemaRejected}, {err: errors.New("down")}}, 2},
		{"retry unparseable", []reply{{err: llm.ErrSchemaRejected}, ok("no json here")}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{name: "remote", replies: tt.replies}
			c := New(p)
			assert.Empty(t, c.Match(context.Background(), fields("Email"), candidates))
			assert.Equal(t, tt.calls, c.Calls())
		})
	}
}

func TestCoordinator_NoWork(t *testing.T) {
	p := &scriptedProvider{name: "remote"}
	c := New(p)
	assert.Nil(t, c.Match(context.Background(), nil, candidates))
	assert.Nil(t, c.Match(context.Background(), fields("Email"), nil))
	assert.Zero(t, c.Calls())
}

func TestCoordinator_Cache(t *testing.T) {
	ctx := context.Background()
	answer := ok(`{"matches":[{"inputId":0,"matchedKey":"email"},{"inputId":1,"matchedKey":null}]}`)

	p := &scriptedProvider{name: "local", replies: []reply{
		answer,
		ok(`{"matches":[{"inputId":1,"matchedKey":null}]}`),
		ok(`{"matches":[{"inputId":0,"matchedKey":"email"}]}`),
		ok(`{"matches":[{"inputId":0,"matchedKey":"email"}]}`),
	}}
	c := New(p)

	batch := fields("Email", "Favourite colour")
	assert.Equal(t, []string{"0=email", "1="}, keys(c.Match(ctx, batch, candidates)))
	assert.Equal(t, 1, c.cache.len(), "only matches are cached")

	// Email is answered from the cache; the unmatched field is asked again.
	assert.Equal(t, []string{"0=email", "1="}, keys(c.Match(ctx, batch, candidates)))
	require.Len(t, p.prompts, 2)
	assert.NotContains(t, p.prompts[1].User, `"Email"`)
	assert.Contains(t, p.prompts[1].User, "Favourite colour")

	// A candidate set with secrets is a different cache class.
	assert.Equal(t, []string{"0=email"}, keys(c.Match(ctx, fields("Email"), secretCandidates)))
	assert.EqualValues(t, 3, c.Calls())

	c.Close()
	assert.Zero(t, c.cache.len())
	assert.Equal(t, []string{"0=email"}, keys(c.Match(ctx, fields("Email"), candidates)))
	assert.EqualValues(t, 4, c.Calls())
}

func TestCoordinator_CacheOnlyOnDevice(t *testing.T) {
	assert.Nil(t, New(&scriptedProvider{name: "remote"}).cache)
	assert.NotNil(t, New(&scriptedProvider{name: "local"}).cache)
	assert.Nil(t, New(&scriptedProvider{name: "local"}, WithCacheSize(0)).cache)
}

func TestCoordinator_Budget(t *testing.T) {
	countRunes := func(s string) int { return len([]rune(s)) }
	batch := fields("Email", "Full name", "Something with a much longer contextual description")
	budget := tokensOf(countRunes, BuildPrompt(batch[:2], candidates))

	p := &scriptedProvider{name: "remote", replies: []reply{
		ok(`{"matches":[{"inputId":0,"matchedKey":"email"},{"inputId":1,"matchedKey":"full_name"}]}`),
		ok(`{"matches":[{"inputId":2,"matchedKey":null},{"inputId":0,"matchedKey":"email"}]}`),
	}}
	c := New(p, WithBudget(budget), WithTokenCounter(countRunes))

	results := c.Match(context.Background(), batch, candidates)
	assert.Equal(t, []string{"0=email", "1=full_name", "2="}, keys(results), "ids outside a sub-batch are dropped")
	require.Len(t, p.prompts, 2)
	assert.NotContains(t, p.prompts[1].User, "Full name")
}

func TestCoordinator_Cancellation(t *testing.T) {
	t.Run("cancelled before matching", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &scriptedProvider{name: "remote"}
		c := New(p)
		assert.Empty(t, c.Match(ctx, fields("Email"), candidates))
		assert.Zero(t, c.Calls())
	})

	t.Run("in-flight call completes, later batches are skipped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var callErr error
		p := &scriptedProvider{
			name: "remote",
			onCall: func(callCtx context.Context) {
				cancel()
				callErr = callCtx.Err()
			},
			replies: []reply{ok(`{"matches":[{"inputId":0,"matchedKey":"email"}]}`)},
		}
		c := New(p, WithBudget(1), WithTokenCounter(func(s string) int { return len(s) }))

		results := c.Match(ctx, fields("Email", "Name"), candidates)
		assert.NoError(t, callErr)
		assert.Equal(t, []string{"0=email"}, keys(results))
		assert.EqualValues(t, 1, c.Calls())
	})
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(fields("Email Address"), secretCandidates)
	assert.Equal(t, SystemInstructions, prompt.System)
	assert.Contains(t, prompt.User, `"keyname": "ssn"`)
	assert.Contains(t, prompt.User, `"sensitive": true`)
	assert.Contains(t, prompt.User, `"context": "Email Address"`)
	assert.True(t, strings.Contains(prompt.System, "null"))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.LLMSettings{Provider: config.ProviderLocal, LocalURL: "http://localhost:11434", LocalModel: "llama3.2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	p, err = NewProvider(config.LLMSettings{Provider: config.ProviderRemote, APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Name())

	_, err = NewProvider(config.LLMSettings{Provider: "psychic"}, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindSchema, classify(fmt.Errorf("x: %w", llm.ErrSchemaRejected)).Kind)
	assert.Equal(t, KindStatus, classify(fmt.Errorf("x: %w", &llm.StatusError{StatusCode: 429})).Kind)
	assert.Equal(t, KindTransport, classify(errors.New("reset")).Kind)

	pe := &ProviderError{Kind: KindSchema, Err: errors.New("bad")}
	assert.Same(t, pe, classify(fmt.Errorf("wrapped: %w", pe)))
}
