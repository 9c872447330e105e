package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/llm/openai"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/match/ondevice"
	"github.com/entrhq/autofill/pkg/match/remote"
)

// Provider answers one matching prompt. A non-nil schema asks for output
// constrained to it.
type Provider interface {
	Name() string
	Infer(ctx context.Context, prompt llm.Prompt, schema *llm.Schema) (string, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindSchema    ErrorKind = "schema"
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
)

// ProviderError is a failed provider call.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func classify(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var status *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrSchemaRejected):
		return &ProviderError{Kind: KindSchema, Err: err}
	case errors.As(err, &status):
		return &ProviderError{Kind: KindStatus, Err: err}
	default:
		return &ProviderError{Kind: KindTransport, Err: err}
	}
}

// NewProvider builds the provider selected by settings. The choice is made
// once; callers keep the returned provider for the process.
func NewProvider(settings config.LLMSettings, logger *logging.Logger) (Provider, error) {
	switch settings.Provider {
	case config.ProviderRemote:
		client, err := openai.NewProvider(settings.APIKey,
			openai.WithBaseURL(settings.BaseURL),
			openai.WithModel(settings.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote provider: %w", err)
		}
		return remote.New(client), nil
	case config.ProviderLocal, "":
		return ondevice.New(ondevice.NewOllamaRuntime(settings.LocalURL, settings.LocalModel), logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", settings.Provider)
	}
}
