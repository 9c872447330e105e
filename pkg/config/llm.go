package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDLLM is the identifier for the LLM settings section
	SectionIDLLM = "llm"

	ProviderLocal  = "local"
	ProviderRemote = "remote"

	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-3.5-turbo"
	DefaultLocalURL   = "http://localhost:11434"
	DefaultLocalModel = "llama3.2"
)

// LLMSection selects the matching provider and its endpoints.
type LLMSection struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	LocalURL   string
	LocalModel string
	mu         sync.RWMutex
}

// NewLLMSection creates an LLM section with default settings.
func NewLLMSection() *LLMSection {
	s := &LLMSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *LLMSection) ID() string {
	return SectionIDLLM
}

// Title returns the section title.
func (s *LLMSection) Title() string {
	return "LLM Settings"
}

// Description returns the section description.
func (s *LLMSection) Description() string {
	return "Choose the on-device (local) or OpenAI-compatible (remote) model used for matching."
}

// Data returns the current configuration data.
func (s *LLMSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"provider":    s.Provider,
		"base_url":    s.BaseURL,
		"api_key":     s.APIKey,
		"model":       s.Model,
		"local_url":   s.LocalURL,
		"local_model": s.LocalModel,
	}
}

// SetData updates the configuration from the provided data.
func (s *LLMSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	setString(data, "provider", &s.Provider)
	setString(data, "base_url", &s.BaseURL)
	if v, ok := data["api_key"].(string); ok {
		s.APIKey = v
	}
	setString(data, "model", &s.Model)
	setString(data, "local_url", &s.LocalURL)
	setString(data, "local_model", &s.LocalModel)
	return nil
}

// Validate checks the provider name.
func (s *LLMSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Provider {
	case ProviderLocal, ProviderRemote:
		return nil
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderLocal, ProviderRemote, s.Provider)
	}
}

// Reset resets the section to default configuration.
func (s *LLMSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Provider = ProviderLocal
	s.BaseURL = DefaultBaseURL
	s.APIKey = ""
	s.Model = DefaultModel
	s.LocalURL = DefaultLocalURL
	s.LocalModel = DefaultLocalModel
}

// GetProvider returns the configured provider kind.
func (s *LLMSection) GetProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Provider
}

// GetAPIKey returns the API key stored in the file, if any.
func (s *LLMSection) GetAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIKey
}

// SetAPIKey sets the API key stored in the file.
func (s *LLMSection) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIKey = apiKey
}

func setString(data map[string]interface{}, key string, dst *string) {
	if v, ok := data[key].(string); ok && v != "" {
		*dst = v
	}
}

func setBool(data map[string]interface{}, key string, dst *bool) {
	if v, ok := data[key].(bool); ok {
		*dst = v
	}
}
