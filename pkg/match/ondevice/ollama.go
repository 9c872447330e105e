package ondevice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/entrhq/autofill/pkg/llm"
)

// OllamaRuntime talks to an Ollama-compatible /api/chat endpoint. Sessions
// keep their history client side and resend it on every prompt.
type OllamaRuntime struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaOption configures an OllamaRuntime.
type OllamaOption func(*OllamaRuntime)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(r *OllamaRuntime) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// NewOllamaRuntime returns a runtime for model at baseURL.
func NewOllamaRuntime(baseURL, model string, opts ...OllamaOption) *OllamaRuntime {
	r := &OllamaRuntime{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a session whose history begins with system.
func (r *OllamaRuntime) Create(ctx context.Context, system string) (Session, error) {
	if r.model == "" {
		return nil, fmt.Errorf("no local model configured")
	}
	return &ollamaSession{
		runtime: r,
		history: []ollamaMessage{{Role: "system", Content: system}},
	}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaSession struct {
	runtime *OllamaRuntime

	mu      sync.Mutex
	history []ollamaMessage
}

func (s *ollamaSession) Prompt(ctx context.Context, text string, schema *llm.Schema) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history == nil {
		return "", ErrSessionLost
	}

	messages := append(append([]ollamaMessage(nil), s.history...), ollamaMessage{Role: "user", Content: text})
	req := ollamaRequest{
		Model:    s.runtime.model,
		Messages: messages,
	}
	if schema != nil {
		req.Format = schema.Schema
	}

	reply, err := s.runtime.chat(ctx, req)
	if err != nil {
		return "", err
	}
	s.history = append(messages, reply)
	return reply.Content, nil
}

func (s *ollamaSession) Clone(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return nil, ErrSessionLost
	}
	return &ollamaSession{
		runtime: s.runtime,
		history: append([]ollamaMessage(nil), s.history...),
	}, nil
}

func (s *ollamaSession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (r *OllamaRuntime) chat(ctx context.Context, body ollamaRequest) (ollamaMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return ollamaMessage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return ollamaMessage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return ollamaMessage{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ollamaMessage{}, fmt.Errorf("failed to read response: %w", err)
	}

	var out ollamaResponse
	decodeErr := json.Unmarshal(data, &out)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ollamaMessage{}, fmt.Errorf("%w: %s", ErrSessionLost, errorText(out, data))
	case resp.StatusCode == http.StatusBadRequest && body.Format != nil && mentionsFormat(errorText(out, data)):
		return ollamaMessage{}, fmt.Errorf("%w: %s", llm.ErrSchemaRejected, errorText(out, data))
	case resp.StatusCode != http.StatusOK:
		return ollamaMessage{}, &llm.StatusError{StatusCode: resp.StatusCode, Body: errorText(out, data)}
	}

	if decodeErr != nil {
		return ollamaMessage{}, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out.Error != "" {
		return ollamaMessage{}, fmt.Errorf("model error: %s", out.Error)
	}
	if out.Message.Role == "" {
		out.Message.Role = "assistant"
	}
	return out.Message, nil
}

func errorText(out ollamaResponse, raw []byte) string {
	if out.Error != "" {
		return out.Error
	}
	return strings.TrimSpace(string(raw))
}

func mentionsFormat(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "format") || strings.Contains(lower, "schema")
}
