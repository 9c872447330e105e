// Package openai implements the llm provider contract for OpenAI-compatible
// chat completion APIs.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o-mini"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	reply, err := provider.CompleteStructured(ctx, messages, llm.Schema{
//	    Name:   "field_matches",
//	    Schema: schema,
//	    Strict: true,
//	})
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/llm/parser"
	"github.com/entrhq/autofill/pkg/types"
	"github.com/openai/openai-go"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-3.5-turbo"
)

// Provider implements llm.Provider and llm.StructuredCompleter for
// OpenAI-compatible APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	modelInfo  *types.ModelInfo
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// NewProvider creates a provider with the given API key.
//
// If apiKey is empty, OPENAI_API_KEY is used. If no base URL option is given,
// OPENAI_BASE_URL is consulted before the default.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	p.modelInfo = &types.ModelInfo{
		Metadata:          make(map[string]interface{}),
		Provider:          "openai",
		Name:              p.model,
		SupportsStreaming: true,
		MaxTokens:         8192,
	}
	if p.baseURL != DefaultBaseURL {
		p.modelInfo.Metadata["base_url"] = p.baseURL
	}

	return p, nil
}

// CloneWithModel returns a shallow copy of p configured to use the given
// model. It implements llm.ModelCloner.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	if p.modelInfo != nil {
		mi := *p.modelInfo
		mi.Name = model
		clone.modelInfo = &mi
	}
	return &clone
}

// StreamCompletion sends messages and streams back response chunks parsed
// from the server-sent event stream.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	resp, err := p.post(ctx, map[string]interface{}{
		"model":    p.model,
		"messages": convertToOpenAIMessages(messages),
		"stream":   true,
	}, "text/event-stream")
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

// Complete returns the assistant reply, excluding thinking blocks.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for chunk := range stream {
		if chunk.IsError() {
			return nil, chunk.Error
		}
		if chunk.IsThinking() {
			continue
		}
		content.WriteString(chunk.Content)
	}

	return types.NewAssistantMessage(content.String()), nil
}

// CompleteStructured requests a reply constrained to schema. A 400 reply that
// names the response format is reported as llm.ErrSchemaRejected.
func (p *Provider) CompleteStructured(ctx context.Context, messages []*types.Message, schema llm.Schema) (*types.Message, error) {
	resp, err := p.post(ctx, map[string]interface{}{
		"model":    p.model,
		"messages": convertToOpenAIMessages(messages),
		"response_format": map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   schema.Name,
				"schema": schema.Schema,
				"strict": schema.Strict,
			},
		},
	}, "application/json")
	if err != nil {
		var status *llm.StatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusBadRequest && mentionsSchema(status.Body) {
			return nil, fmt.Errorf("%w: %w", llm.ErrSchemaRejected, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}

	msg := completion.Choices[0].Message
	if msg.Content == "" && msg.Refusal != "" {
		return nil, fmt.Errorf("%w: model refused: %s", llm.ErrSchemaRejected, msg.Refusal)
	}
	return types.NewAssistantMessage(msg.Content), nil
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// post sends a chat completion request and returns the 200 response.
func (p *Provider) post(ctx context.Context, reqBody map[string]interface{}, accept string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", accept)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &llm.StatusError{StatusCode: resp.StatusCode, Body: "failed to read error body"}
		}
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

// processStreamResponse reads the SSE stream and sends chunks to the channel.
func (p *Provider) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	filter := parser.NewThinkingFilter()
	role := ""

	for scanner.Scan() {
		line := scanner.Text()
		if !isDataLine(line) {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			if p.flush(ctx, filter, role, chunks) {
				p.send(ctx, &llm.StreamChunk{Role: role, Finished: true}, chunks)
			}
			return
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil || len(event.Choices) == 0 {
			continue
		}

		choice := event.Choices[0]
		if role == "" && choice.Delta.Role != "" {
			role = choice.Delta.Role
		}

		message, thinking := filter.Feed(choice.Delta.Content)
		if !p.emit(ctx, role, message, thinking, chunks) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.send(ctx, &llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)}, chunks)
		return
	}

	// Stream ended without [DONE]; deliver what arrived.
	if p.flush(ctx, filter, role, chunks) {
		p.send(ctx, &llm.StreamChunk{Role: role, Finished: true}, chunks)
	}
}

func (p *Provider) flush(ctx context.Context, filter *parser.ThinkingFilter, role string, chunks chan<- *llm.StreamChunk) bool {
	message, thinking := filter.Flush()
	return p.emit(ctx, role, message, thinking, chunks)
}

func (p *Provider) emit(ctx context.Context, role, message, thinking string, chunks chan<- *llm.StreamChunk) bool {
	if thinking != "" {
		if !p.send(ctx, &llm.StreamChunk{Role: role, Content: thinking, Type: llm.ContentTypeThinking}, chunks) {
			return false
		}
	}
	if message != "" {
		return p.send(ctx, &llm.StreamChunk{Role: role, Content: message, Type: llm.ContentTypeMessage}, chunks)
	}
	return true
}

// send delivers a chunk unless ctx is done, in which case it reports the
// cancellation as the last chunk.
func (p *Provider) send(ctx context.Context, chunk *llm.StreamChunk, chunks chan<- *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		select {
		case chunks <- &llm.StreamChunk{Error: ctx.Err()}:
		default:
		}
		return false
	}
}

func isDataLine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data: ")
}

func mentionsSchema(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "response_format") || strings.Contains(lower, "json_schema")
}

// convertToOpenAIMessages converts messages to the OpenAI parameter unions.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}
