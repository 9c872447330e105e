package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/entrhq/autofill/pkg/types"
)

// Snapshot is the persisted state of a vault. Secret item values are
// envelopes when SafeMode is set.
type Snapshot struct {
	SafeMode  bool                     `json:"isSafeMode"`
	Metadata  *types.VaultMetadata     `json:"metadata,omitempty"`
	Items     []types.PersonalInfoItem `json:"personalInfo"`
	Whitelist []string                 `json:"whitelist"`
}

// Store persists snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// FileStore keeps the snapshot in one JSON file, replaced atomically on save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store for path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file is an empty, Disabled vault.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read vault: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode vault %s: %w", s.path, err)
	}
	return snap, nil
}

// Save writes the snapshot through a temp file and rename.
func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Items == nil {
		snap.Items = []types.PersonalInfoItem{}
	}
	if snap.Whitelist == nil {
		snap.Whitelist = []string{}
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vault: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, raw, 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write vault: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// MemoryStore keeps the snapshot in memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryStore returns a store seeded with snap.
func NewMemoryStore(snap Snapshot) *MemoryStore {
	return &MemoryStore{snap: cloneSnapshot(snap)}
}

// Load returns a copy of the held snapshot.
func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.snap), nil
}

// Save replaces the held snapshot.
func (s *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = cloneSnapshot(snap)
	return nil
}

func cloneSnapshot(snap Snapshot) Snapshot {
	out := snap
	if snap.Metadata != nil {
		md := *snap.Metadata
		out.Metadata = &md
	}
	out.Items = append([]types.PersonalInfoItem(nil), snap.Items...)
	out.Whitelist = append([]string(nil), snap.Whitelist...)
	return out
}
