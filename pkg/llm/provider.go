// Package llm defines the chat-completion transport used by the remote
// matching provider, streaming fill and smart add.
//
// Example usage:
//
//	provider, err := openai.NewProvider(apiKey, openai.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    return err
//	}
//
//	stream, err := provider.StreamCompletion(ctx, []*types.Message{
//	    types.NewSystemMessage("Output ONLY the content to fill."),
//	    types.NewUserMessage("Cover letter opening"),
//	})
//	if err != nil {
//	    return err
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        return chunk.Error
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"
	"errors"

	"github.com/entrhq/autofill/pkg/types"
)

// ErrSchemaRejected reports that the endpoint refused a structured-output
// constraint. Callers may retry without one.
var ErrSchemaRejected = errors.New("structured output constraint rejected")

// Provider is a chat-completion endpoint.
type Provider interface {
	// StreamCompletion sends messages and streams back response chunks.
	//
	// The channel emits content deltas, then a chunk with Finished set, and
	// is closed afterwards. Stream-time failures arrive as chunks with Error
	// set. An error is returned only when the stream cannot be started.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete returns the whole assistant reply.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}

// ModelCloner is an optional interface for providers that can redirect calls
// to another model while sharing credentials and transport.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// Schema is a JSON-schema constraint on a completion.
type Schema struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// StructuredCompleter is an optional interface for providers that can
// constrain a reply to a JSON schema. Implementations return an error
// wrapping ErrSchemaRejected when the endpoint does not accept the schema.
type StructuredCompleter interface {
	CompleteStructured(ctx context.Context, messages []*types.Message, schema Schema) (*types.Message, error)
}

// Prompt is a single-turn request.
type Prompt struct {
	System string
	User   string
}

// Messages returns the prompt as a system and a user message.
func (p Prompt) Messages() []*types.Message {
	return []*types.Message{
		types.NewSystemMessage(p.System),
		types.NewUserMessage(p.User),
	}
}
