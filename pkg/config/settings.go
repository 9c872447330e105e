package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the OS keyring service holding the API key.
	KeyringService = "autofill"
	// KeyringUser is the account name under KeyringService.
	KeyringUser = "openai-api-key"
)

// LLMSettings is the resolved provider configuration of one process.
type LLMSettings struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	LocalURL   string
	LocalModel string
}

// LLMFlags carries command-line overrides. Empty fields are unset.
type LLMFlags struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	LocalURL   string
	LocalModel string
}

// BuildLLMSettings resolves provider settings with precedence
// CLI flags > environment > OS keyring > config file > defaults.
// The keyring is only consulted for the API key.
func BuildLLMSettings(flags LLMFlags) (LLMSettings, error) {
	settings := LLMSettings{
		Provider:   ProviderLocal,
		BaseURL:    DefaultBaseURL,
		Model:      DefaultModel,
		LocalURL:   DefaultLocalURL,
		LocalModel: DefaultLocalModel,
	}

	if file := GetLLM(); file != nil {
		data := file.Data()
		override(&settings.Provider, data["provider"])
		override(&settings.BaseURL, data["base_url"])
		override(&settings.APIKey, data["api_key"])
		override(&settings.Model, data["model"])
		override(&settings.LocalURL, data["local_url"])
		override(&settings.LocalModel, data["local_model"])
	}

	key, err := LoadAPIKey()
	if err != nil {
		return LLMSettings{}, err
	}
	override(&settings.APIKey, key)

	override(&settings.APIKey, os.Getenv("OPENAI_API_KEY"))
	override(&settings.BaseURL, os.Getenv("OPENAI_BASE_URL"))

	override(&settings.Provider, flags.Provider)
	override(&settings.BaseURL, flags.BaseURL)
	override(&settings.APIKey, flags.APIKey)
	override(&settings.Model, flags.Model)
	override(&settings.LocalURL, flags.LocalURL)
	override(&settings.LocalModel, flags.LocalModel)

	switch settings.Provider {
	case ProviderLocal:
	case ProviderRemote:
		if settings.APIKey == "" {
			return LLMSettings{}, fmt.Errorf("API key is required for the remote provider. Set OPENAI_API_KEY, pass --api-key, or run 'autofill config set-api-key'")
		}
	default:
		return LLMSettings{}, fmt.Errorf("unknown provider %q", settings.Provider)
	}

	return settings, nil
}

// LoadAPIKey reads the API key from the OS keyring. A missing entry is "".
func LoadAPIKey() (string, error) {
	key, err := keyring.Get(KeyringService, KeyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		// Headless systems often have no keyring; fall through to other sources.
		if errors.Is(err, keyring.ErrUnsupportedPlatform) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read API key from keyring: %w", err)
	}
	return key, nil
}

// StoreAPIKey saves the API key in the OS keyring.
func StoreAPIKey(key string) error {
	if err := keyring.Set(KeyringService, KeyringUser, key); err != nil {
		return fmt.Errorf("failed to store API key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the API key from the OS keyring.
func DeleteAPIKey() error {
	err := keyring.Delete(KeyringService, KeyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete API key from keyring: %w", err)
	}
	return nil
}

func override(dst *string, v interface{}) {
	if s, ok := v.(string); ok && s != "" {
		*dst = s
	}
}
