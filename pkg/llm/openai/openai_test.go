package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithModel("test-model"))
	require.NoError(t, err)
	return p
}

func sse(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, ": keep-alive\n\n")
	for i, d := range deltas {
		payload := map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": d}}}}
		if i == 0 {
			payload["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)["role"] = "assistant"
		}
		b, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)
}

func TestNewProvider_EnvBaseURL(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "http://proxy.local/v1/")
	p, err := NewProvider("k")
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local/v1", p.GetBaseURL())
	assert.Equal(t, DefaultModel, p.GetModel())
}

func TestStreamCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "test-model", body["model"])

		sse(w, "<think", "ing>draft</thinking>Dear ", "hiring manager")
	})

	stream, err := p.StreamCompletion(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)

	var message, thinking strings.Builder
	finished := false
	for chunk := range stream {
		require.False(t, chunk.IsError(), "unexpected error: %v", chunk.Error)
		if chunk.Finished {
			finished = true
			continue
		}
		assert.Equal(t, "assistant", chunk.Role)
		if chunk.IsThinking() {
			thinking.WriteString(chunk.Content)
		} else {
			message.WriteString(chunk.Content)
		}
	}

	assert.True(t, finished)
	assert.Equal(t, "Dear hiring manager", message.String())
	assert.Equal(t, "draft", thinking.String())
}

func TestComplete_StatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	var status *llm.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusTooManyRequests, status.StatusCode)
	assert.NotErrorIs(t, err, llm.ErrSchemaRejected)
}

func TestCompleteStructured(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream         bool `json:"stream"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string         `json:"name"`
					Strict bool           `json:"strict"`
					Schema map[string]any `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		assert.Equal(t, "json_schema", body.ResponseFormat.Type)
		assert.Equal(t, "matches", body.ResponseFormat.JSONSchema.Name)
		assert.True(t, body.ResponseFormat.JSONSchema.Strict)
		assert.Equal(t, "object", body.ResponseFormat.JSONSchema.Schema["type"])
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"matches\":[]}"}}]}`)
	})

	msg, err := p.CompleteStructured(context.Background(), []*types.Message{
		types.NewSystemMessage("rules"),
		types.NewUserMessage("fields"),
	}, llm.Schema{Name: "matches", Schema: map[string]any{"type": "object"}, Strict: true})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, `{"matches":[]}`, msg.Content)
}

func TestCompleteStructured_SchemaRejected(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid parameter: 'response_format' of type 'json_schema' is not supported with this model."}}`, http.StatusBadRequest)
	})

	_, err := p.CompleteStructured(context.Background(), []*types.Message{types.NewUserMessage("x")}, llm.Schema{Name: "m"})
	assert.ErrorIs(t, err, llm.ErrSchemaRejected)

	var status *llm.StatusError
	assert.ErrorAs(t, err, &status)
}

func TestCompleteStructured_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := p.CompleteStructured(context.Background(), nil, llm.Schema{Name: "m"})
	assert.Error(t, err)
}

func TestCloneWithModel(t *testing.T) {
	p, err := NewProvider("k", WithModel("a"))
	require.NoError(t, err)

	clone := p.CloneWithModel("b")
	assert.Equal(t, "b", clone.GetModel())
	assert.Equal(t, "b", clone.GetModelInfo().Name)
	assert.Equal(t, "a", p.GetModel())
	assert.Equal(t, "a", p.GetModelInfo().Name)
}
