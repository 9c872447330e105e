package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/autofill/pkg/types"
	"github.com/entrhq/autofill/pkg/vault/crypto"
)

const (
	ExportType    = "ai-autofill-export"
	ExportVersion = 3

	// legacyVersion exports seal the whole item list as one envelope.
	legacyVersion = 2
)

// ExportFile is the portable form of a vault.
type ExportFile struct {
	Type       string                   `json:"type"`
	Version    int                      `json:"version"`
	IsSafeMode bool                     `json:"isSafeMode"`
	Metadata   *types.VaultMetadata     `json:"metadata,omitempty"`
	Data       []types.PersonalInfoItem `json:"data"`

	Encrypted bool            `json:"encrypted,omitempty"`
	Vault     *types.Envelope `json:"vault,omitempty"`
}

// Export serialises the vault with items in their stored form. Secret values
// stay sealed, so a locked vault can be exported.
func (v *Vault) Export(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	file := ExportFile{
		Type:       ExportType,
		Version:    ExportVersion,
		IsSafeMode: snap.SafeMode,
		Data:       snap.Items,
	}
	if snap.SafeMode {
		file.Metadata = snap.Metadata
	}
	if file.Data == nil {
		file.Data = []types.PersonalInfoItem{}
	}

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return out, nil
}

// Import replaces the vault's items with those in data.
//
// A Safe Mode export is adopted as is: its metadata replaces the local one
// and the vault ends up locked, to be opened with the exporter's password.
// Plaintext items imported into a Safe Mode vault are sealed, which needs the
// vault unlocked or password to unlock it. Legacy encrypted exports need
// password to be opened at all.
func (v *Vault) Import(ctx context.Context, data []byte, password string) error {
	var file ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if file.Type != ExportType {
		return fmt.Errorf("%w: unexpected type %q", ErrInvalidExport, file.Type)
	}

	items := file.Data
	switch {
	case file.Version <= legacyVersion && file.Encrypted:
		opened, err := openLegacy(file, password)
		if err != nil {
			return err
		}
		items = opened
	case file.IsSafeMode:
		return v.adopt(ctx, file)
	}

	if err := checkKeynames(items); err != nil {
		return err
	}
	for i := range items {
		if items[i].Value.IsEncrypted() {
			return fmt.Errorf("%w: %s is encrypted in a plaintext export", ErrInvalidExport, items[i].Keyname)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}

	if snap.SafeMode {
		if v.dataKey == nil {
			if password == "" {
				return ErrNeedsPassword
			}
			key, err := unwrapDataKey(snap.Metadata, password)
			if err != nil {
				return err
			}
			v.setKey(key)
		}
		for i := range items {
			if err := sealItem(&items[i], v.dataKey); err != nil {
				return err
			}
		}
	}

	snap.Items = items
	if err := v.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	v.logger.Infof("Imported %d items", len(items))
	return nil
}

func (v *Vault) adopt(ctx context.Context, file ExportFile) error {
	if file.Metadata == nil {
		return fmt.Errorf("%w: Safe Mode export without metadata", ErrInvalidExport)
	}
	if err := checkKeynames(file.Data); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}
	snap.SafeMode = true
	snap.Metadata = file.Metadata
	snap.Items = file.Data

	if err := v.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	v.setKey(nil)
	v.logger.Infof("Imported %d items with Safe Mode metadata", len(file.Data))
	return nil
}

func openLegacy(file ExportFile, password string) ([]types.PersonalInfoItem, error) {
	if password == "" {
		return nil, ErrNeedsPassword
	}
	if file.Vault == nil {
		return nil, fmt.Errorf("%w: encrypted export without vault", ErrInvalidExport)
	}

	key, err := unwrapDataKey(file.Metadata, password)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	var items []types.PersonalInfoItem
	if err := crypto.Decrypt(*file.Vault, key, &items); err != nil {
		return nil, ErrIncorrectPassword
	}
	return items, nil
}
