// Package remote runs matching against a stateless chat-completion endpoint.
package remote

import (
	"context"

	"github.com/entrhq/autofill/pkg/llm"
)

// Name identifies the provider.
const Name = "remote"

// Provider sends each prompt as a fresh two-message conversation.
type Provider struct {
	client llm.Provider
}

// New returns a provider over client. Schema constraints are used when
// client implements llm.StructuredCompleter and are dropped otherwise.
func New(client llm.Provider) *Provider {
	return &Provider{client: client}
}

// Name returns "remote".
func (p *Provider) Name() string {
	return Name
}

// Model returns the model the client talks to.
func (p *Provider) Model() string {
	return p.client.GetModel()
}

// Infer returns the assistant reply to prompt.
func (p *Provider) Infer(ctx context.Context, prompt llm.Prompt, schema *llm.Schema) (string, error) {
	messages := prompt.Messages()

	if schema != nil {
		if sc, ok := p.client.(llm.StructuredCompleter); ok {
			msg, err := sc.CompleteStructured(ctx, messages, *schema)
			if err != nil {
				return "", err
			}
			return msg.Content, nil
		}
	}

	msg, err := p.client.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
