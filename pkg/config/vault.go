package config

import (
	"fmt"
	"path/filepath"
	"sync"
)

const (
	// SectionIDVault is the identifier for vault storage settings.
	SectionIDVault = "vault"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// VaultSection selects where the vault is stored.
type VaultSection struct {
	Backend string
	Path    string
	mu      sync.RWMutex
}

// NewVaultSection creates the section with defaults.
func NewVaultSection() *VaultSection {
	s := &VaultSection{}
	s.Reset()
	return s
}

func (s *VaultSection) ID() string { return SectionIDVault }

func (s *VaultSection) Title() string { return "Vault" }

func (s *VaultSection) Description() string {
	return "Storage backend for personal data. An empty path uses ~/.autofill."
}

// Data returns the current configuration data.
func (s *VaultSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"backend": s.Backend,
		"path":    s.Path,
	}
}

// SetData updates the configuration from the provided data.
func (s *VaultSection) SetData(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	setString(data, "backend", &s.Backend)
	if v, ok := data["path"].(string); ok {
		s.Path = v
	}
	return nil
}

// Validate checks the backend name.
func (s *VaultSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Backend != BackendFile && s.Backend != BackendSQLite {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendFile, BackendSQLite, s.Backend)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *VaultSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Backend = BackendFile
	s.Path = ""
}

// Location returns the backend and the resolved storage path.
func (s *VaultSection) Location() (backend, path string, err error) {
	s.mu.RLock()
	backend, path = s.Backend, s.Path
	s.mu.RUnlock()

	if path != "" {
		return backend, path, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", "", err
	}
	name := "vault.json"
	if backend == BackendSQLite {
		name = "vault.db"
	}
	return backend, filepath.Join(dir, name), nil
}
