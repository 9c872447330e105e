package streamfill

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/page"
	"github.com/entrhq/autofill/pkg/types"
)

type streamProvider struct {
	chunks   []*llm.StreamChunk
	startErr error
	hold     bool
	messages []*types.Message
}

func (p *streamProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	p.messages = messages
	if p.startErr != nil {
		return nil, p.startErr
	}
	ch := make(chan *llm.StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	if !p.hold {
		close(ch)
	}
	return ch, nil
}

func (p *streamProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	return nil, errors.New("not used")
}
func (p *streamProvider) GetModelInfo() *types.ModelInfo { return &types.ModelInfo{Name: "test"} }
func (p *streamProvider) GetModel() string               { return "test" }
func (p *streamProvider) GetBaseURL() string             { return "" }

func content(s string) *llm.StreamChunk { return &llm.StreamChunk{Content: s} }

func newPage(t *testing.T) (*page.Static, *detector.Field) {
	t.Helper()
	p, err := page.Load("shop.example.com", strings.NewReader(
		`<html><body><label for="bio">Short bio</label><textarea id="bio">old text</textarea></body></html>`))
	require.NoError(t, err)
	doc, err := p.Document(context.Background())
	require.NoError(t, err)
	fields := detector.Collect(doc, detector.Options{})
	require.Len(t, fields, 1)
	return p, fields[0]
}

func TestFill_StreamsAndThrottles(t *testing.T) {
	pg, field := newPage(t)
	prov := &streamProvider{chunks: []*llm.StreamChunk{
		content("Hel"),
		{Content: "planning", Type: llm.ContentTypeThinking},
		content("lo"),
		content(" world"),
		{Finished: true},
	}}
	f := New(prov, WithInterval(time.Hour))

	res, err := f.Fill(context.Background(), pg, field, "write a greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", res.Text)
	assert.Equal(t, 2, res.Updates)

	v, _ := pg.Value(field)
	assert.Equal(t, "Hello world", v)

	require.Len(t, prov.messages, 2)
	assert.Equal(t, SystemPrompt(field.Context), prov.messages[0].Content)
	assert.Contains(t, prov.messages[0].Content, "Short bio")
	assert.Equal(t, "write a greeting", prov.messages[1].Content)
}

func TestFill_EveryChunkWithoutThrottle(t *testing.T) {
	pg, field := newPage(t)
	prov := &streamProvider{chunks: []*llm.StreamChunk{content("a"), content("b"), content("c")}}

	res, err := New(prov, WithInterval(0)).Fill(context.Background(), pg, field, "")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Text)
	assert.Equal(t, 4, res.Updates)
}

func TestFill_StreamErrorKeepsPartial(t *testing.T) {
	pg, field := newPage(t)
	boom := errors.New("connection reset")
	prov := &streamProvider{chunks: []*llm.StreamChunk{content("Dear"), {Error: boom}}}

	res, err := New(prov, WithInterval(time.Hour)).Fill(context.Background(), pg, field, "")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Dear", res.Text)
	v, _ := pg.Value(field)
	assert.Equal(t, "Dear", v)
}

func TestFill_StartErrorLeavesField(t *testing.T) {
	pg, field := newPage(t)
	f := New(&streamProvider{startErr: errors.New("401")})

	_, err := f.Fill(context.Background(), pg, field, "")
	assert.Error(t, err)
	v, _ := pg.Value(field)
	assert.Equal(t, "old text", v)

	restored, err := f.Undo(pg, field)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestFill_Cancelled(t *testing.T) {
	pg, field := newPage(t)
	prov := &streamProvider{chunks: []*llm.StreamChunk{content("partial")}, hold: true}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res, err := New(prov).Fill(ctx, pg, field, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "partial", res.Text)
}

func TestUndo(t *testing.T) {
	pg, field := newPage(t)
	f := New(&streamProvider{chunks: []*llm.StreamChunk{content("new text")}})

	_, err := f.Fill(context.Background(), pg, field, "")
	require.NoError(t, err)

	restored, err := f.Undo(pg, field)
	require.NoError(t, err)
	assert.True(t, restored)
	v, _ := pg.Value(field)
	assert.Equal(t, "old text", v)

	restored, err = f.Undo(pg, field)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestFromSettings(t *testing.T) {
	_, err := FromSettings(config.LLMSettings{Provider: config.ProviderLocal})
	assert.ErrorIs(t, err, ErrRemoteOnly)

	f, err := FromSettings(config.LLMSettings{Provider: config.ProviderRemote, APIKey: "sk-test", BaseURL: config.DefaultBaseURL, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", f.provider.GetModel())
}
