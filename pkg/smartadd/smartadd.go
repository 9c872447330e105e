// Package smartadd asks the remote model to draft vault items from a plain
// language request, and applies the accepted drafts to the vault.
package smartadd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/llm/openai"
	"github.com/entrhq/autofill/pkg/llm/parser"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/types"
)

var (
	// ErrEmptyRequest is returned for a blank request.
	ErrEmptyRequest = errors.New("smart add request is empty")
	// ErrNoResult is returned when the model produced no usable items.
	ErrNoResult = errors.New("no items generated")
	// ErrRemoteOnly is returned when no remote provider is configured.
	ErrRemoteOnly = errors.New("smart add requires the remote provider with an API key")
)

const systemPrompt = "You create records for a personal data vault used to autofill web forms. Reply with JSON only."

// Draft is one generated item before it is accepted.
type Draft struct {
	Keyname     string  `json:"keyname"`
	Description string  `json:"description"`
	Value       string  `json:"value"`
	IsSecret    bool    `json:"isSecret"`
	FakeValue   *string `json:"fakeValue"`
}

// Item converts the draft to a vault item.
func (d Draft) Item() types.PersonalInfoItem {
	item := types.PersonalInfoItem{
		Keyname:     strings.TrimSpace(d.Keyname),
		Description: strings.TrimSpace(d.Description),
		Value:       types.PlainValue(d.Value),
		IsSecret:    d.IsSecret,
	}
	if d.FakeValue != nil {
		item.FakeValue = *d.FakeValue
	}
	return item
}

// Generator drafts items with a completion provider.
type Generator struct {
	client llm.Provider
	logger *logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New returns a generator over client.
func New(client llm.Provider, opts ...Option) *Generator {
	g := &Generator{client: client, logger: logging.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromSettings builds a generator from LLM settings.
func FromSettings(settings config.LLMSettings, opts ...Option) (*Generator, error) {
	if settings.Provider != config.ProviderRemote || settings.APIKey == "" {
		return nil, ErrRemoteOnly
	}
	client, err := openai.NewProvider(settings.APIKey,
		openai.WithBaseURL(settings.BaseURL),
		openai.WithModel(settings.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote provider: %w", err)
	}
	return New(client, opts...), nil
}

// Schema is the structured-output constraint for a list of drafts.
func Schema() llm.Schema {
	return llm.Schema{
		Name:   "vault_items",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"keyname": map[string]any{
								"type":        "string",
								"description": "Unique alphanumeric key (e.g. 'work_email', 'home_address'). Snake_case preferred. MUST BE ENGLISH.",
							},
							"description": map[string]any{
								"type":        "string",
								"description": "Detailed and clear description of what this data is, to help AI match it correctly in forms.",
							},
							"value": map[string]any{
								"type":        "string",
								"description": "The actual content/value to be autofilled.",
							},
							"isSecret": map[string]any{
								"type":        "boolean",
								"description": "Set to true if this is sensitive data like passwords, IDs, phone numbers, exact addresses.",
							},
							"fakeValue": map[string]any{
								"type":        []string{"string", "null"},
								"description": "A realistic-looking but fake value to use on untrusted sites. Required if isSecret is true.",
							},
						},
						"required":             []string{"keyname", "description", "value", "isSecret", "fakeValue"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"items"},
			"additionalProperties": false,
		},
	}
}

// UserPrompt wraps a request for the model.
func UserPrompt(request string) string {
	return fmt.Sprintf("Extract or generate personal data items based on this request: %q.\n"+
		"Generate realistic values if needed (for personas). Keynames MUST be English. Descriptions MUST be detailed.", request)
}

// Generate drafts items for request. Drafts without a keyname are dropped.
func (g *Generator) Generate(ctx context.Context, request string) ([]Draft, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}

	prompt := llm.Prompt{System: systemPrompt, User: UserPrompt(request)}
	out, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	drafts, err := Parse(out)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, ErrNoResult
	}
	return drafts, nil
}

func (g *Generator) complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	if sc, ok := g.client.(llm.StructuredCompleter); ok {
		msg, err := sc.CompleteStructured(ctx, prompt.Messages(), Schema())
		if err == nil {
			return msg.Content, nil
		}
		if !errors.Is(err, llm.ErrSchemaRejected) {
			return "", fmt.Errorf("failed to generate items: %w", err)
		}
		g.logger.Warnf("Schema rejected, retrying unconstrained: %v", err)
	}

	msg, err := g.client.Complete(ctx, prompt.Messages())
	if err != nil {
		return "", fmt.Errorf("failed to generate items: %w", err)
	}
	return msg.Content, nil
}

// Parse reads drafts from model output. Both {"items": [...]} and a bare
// array are accepted, with or without surrounding prose or code fences.
func Parse(output string) ([]Draft, error) {
	raw, err := parser.ExtractJSON(output)
	if err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	var drafts []Draft
	if strings.HasPrefix(raw, "[") {
		err = json.Unmarshal([]byte(raw), &drafts)
	} else {
		var resp struct {
			Items []Draft `json:"items"`
		}
		err = json.Unmarshal([]byte(raw), &resp)
		drafts = resp.Items
	}
	if err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	out := drafts[:0]
	for _, d := range drafts {
		if strings.TrimSpace(d.Keyname) == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Upserter adds an item or replaces the one with the same keyname.
type Upserter interface {
	UpsertItem(ctx context.Context, item types.PersonalInfoItem) (added bool, err error)
}

// Summary counts what Apply did.
type Summary struct {
	Added   int
	Updated int
	Failed  map[string]error
}

// Applied is the number of drafts written.
func (s Summary) Applied() int {
	return s.Added + s.Updated
}

// Apply writes drafts to the vault. A failed draft is recorded and the rest
// are still applied.
func Apply(ctx context.Context, store Upserter, drafts []Draft) Summary {
	sum := Summary{Failed: make(map[string]error)}
	for _, d := range drafts {
		item := d.Item()
		added, err := store.UpsertItem(ctx, item)
		if err != nil {
			sum.Failed[item.Keyname] = err
			continue
		}
		if added {
			sum.Added++
		} else {
			sum.Updated++
		}
	}
	return sum
}
