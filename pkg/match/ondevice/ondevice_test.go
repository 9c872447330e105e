package ondevice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autofill/pkg/llm"
)

type fakeRuntime struct {
	mu       sync.Mutex
	created  int
	sessions []*fakeSession
	cloneErr error
	replies  []error
}

func (r *fakeRuntime) Create(ctx context.Context, system string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	s := &fakeSession{runtime: r, system: system}
	r.sessions = append(r.sessions, s)
	return s, nil
}

type fakeSession struct {
	runtime   *fakeRuntime
	system    string
	prompts   []string
	clone     bool
	destroyed bool
}

func (s *fakeSession) Prompt(ctx context.Context, text string, schema *llm.Schema) (string, error) {
	s.runtime.mu.Lock()
	defer s.runtime.mu.Unlock()
	s.prompts = append(s.prompts, text)
	if len(s.runtime.replies) > 0 {
		err := s.runtime.replies[0]
		s.runtime.replies = s.runtime.replies[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s/%s", s.system, text), nil
}

func (s *fakeSession) Clone(ctx context.Context) (Session, error) {
	if s.runtime.cloneErr != nil {
		return nil, s.runtime.cloneErr
	}
	return &fakeSession{runtime: s.runtime, system: s.system, clone: true}, nil
}

func (s *fakeSession) Destroy() {
	s.destroyed = true
}

func TestProvider_ReusesBaseAndClonesPerCall(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{}
	p := New(rt, nil)
	assert.Equal(t, "local", p.Name())

	for i := 0; i < 3; i++ {
		out, err := p.Infer(ctx, llm.Prompt{System: "sys", User: fmt.Sprint(i)}, nil)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("sys/%d", i), out)
	}

	assert.Equal(t, 1, rt.created)
	assert.Empty(t, rt.sessions[0].prompts, "base session is never prompted directly")
	assert.False(t, rt.sessions[0].destroyed)

	p.Close()
	assert.True(t, rt.sessions[0].destroyed)
}

func TestProvider_FallsBackToBaseWhenCloneFails(t *testing.T) {
	rt := &fakeRuntime{cloneErr: errors.New("clone unsupported")}
	p := New(rt, nil)

	_, err := p.Infer(context.Background(), llm.Prompt{System: "sys", User: "q"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, rt.sessions[0].prompts)
	assert.False(t, rt.sessions[0].destroyed)
}

func TestProvider_SessionLossRecreates(t *testing.T) {
	ctx := context.Background()
	rt := &fakeRuntime{replies: []error{ErrSessionLost, errors.New("transient")}}
	p := New(rt, nil)

	_, err := p.Infer(ctx, llm.Prompt{System: "sys", User: "a"}, nil)
	assert.ErrorIs(t, err, ErrSessionLost)

	_, err = p.Infer(ctx, llm.Prompt{System: "sys", User: "b"}, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, rt.created, "lost session is recreated")

	_, err = p.Infer(ctx, llm.Prompt{System: "sys", User: "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rt.created, "other errors keep the session")
}

func TestOllamaRuntime(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []ollamaRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		switch req.Model {
		case "gone":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model 'gone' not found"}`)
		case "strict":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid format: schema not supported"}`)
		default:
			last := req.Messages[len(req.Messages)-1]
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":"echo %s"},"done":true}`, last.Content)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	schema := &llm.Schema{Name: "m", Schema: map[string]any{"type": "object"}}

	t.Run("prompt through provider", func(t *testing.T) {
		p := New(NewOllamaRuntime(srv.URL+"/", "llama3.2"), nil)
		out, err := p.Infer(ctx, llm.Prompt{System: "sys", User: "hi"}, schema)
		require.NoError(t, err)
		assert.Equal(t, "echo hi", out)

		out, err = p.Infer(ctx, llm.Prompt{System: "sys", User: "again"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "echo again", out)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, requests, 2)
		assert.Len(t, requests[1].Messages, 2, "clones do not carry previous calls")
		assert.Equal(t, "system", requests[1].Messages[0].Role)
		assert.NotNil(t, requests[0].Format)
		assert.Nil(t, requests[1].Format)
		assert.False(t, requests[0].Stream)
	})

	t.Run("missing model loses session", func(t *testing.T) {
		p := New(NewOllamaRuntime(srv.URL, "gone"), nil)
		_, err := p.Infer(ctx, llm.Prompt{System: "sys", User: "hi"}, nil)
		assert.ErrorIs(t, err, ErrSessionLost)
	})

	t.Run("rejected format", func(t *testing.T) {
		p := New(NewOllamaRuntime(srv.URL, "strict"), nil)
		_, err := p.Infer(ctx, llm.Prompt{System: "sys", User: "hi"}, schema)
		assert.ErrorIs(t, err, llm.ErrSchemaRejected)

		_, err = p.Infer(ctx, llm.Prompt{System: "sys", User: "hi"}, nil)
		var status *llm.StatusError
		require.ErrorAs(t, err, &status)
		assert.Equal(t, http.StatusBadRequest, status.StatusCode)
	})

	t.Run("no model configured", func(t *testing.T) {
		_, err := NewOllamaRuntime(srv.URL, "").Create(ctx, "sys")
		assert.Error(t, err)
	})
}
