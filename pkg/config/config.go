// Package config loads and saves the settings file and resolves the model
// provider settings from flags, environment, OS keyring and file.
package config

import (
	"sync"
)

var (
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global manager over the file at configPath (empty
// for the default location), registers the built-in sections and loads them.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	for _, section := range []Section{NewAutofillSection(), NewLLMSection(), NewVaultSection()} {
		if err := manager.RegisterSection(section); err != nil {
			return err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

func section[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	s, ok := Global().GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := s.(T)
	if !ok {
		return zero
	}
	return typed
}

// GetAutofill returns the autofill section, or nil before Initialize.
func GetAutofill() *AutofillSection {
	return section[*AutofillSection](SectionIDAutofill)
}

// GetLLM returns the LLM section, or nil before Initialize.
func GetLLM() *LLMSection {
	return section[*LLMSection](SectionIDLLM)
}

// GetVault returns the vault section, or nil before Initialize.
func GetVault() *VaultSection {
	return section[*VaultSection](SectionIDVault)
}
