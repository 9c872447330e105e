// Package vault stores personal-data items and gates secret values behind a
// password-derived key.
//
// A vault is in one of three states:
//
//	Disabled  no Safe Mode; every value is stored in plaintext
//	Locked    Safe Mode is on and the data key is not in memory
//	Unlocked  Safe Mode is on and the data key is in memory
//
// In Safe Mode each secret item value is sealed individually under a random
// data key. The data key is wrapped by a master key derived from the user's
// password, and a validator envelope lets a password be checked before the
// data key is unwrapped.
package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/types"
	"github.com/entrhq/autofill/pkg/vault/crypto"
)

// Validator is the plaintext sealed into the validator envelope.
const Validator = "VALID"

// State is the Safe Mode state of a vault.
type State int

const (
	StateDisabled State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Vault is safe for concurrent use. The data key lives only in memory and is
// zeroed by Lock.
type Vault struct {
	store  Store
	logger *logging.Logger

	mu      sync.Mutex
	dataKey []byte
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// New returns a vault backed by store. It starts locked.
func New(store Store, opts ...Option) *Vault {
	v := &Vault{
		store:  store,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State reports the current state.
func (v *Vault) State(ctx context.Context) (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return StateDisabled, err
	}
	return v.stateOf(snap), nil
}

func (v *Vault) stateOf(snap Snapshot) State {
	switch {
	case !snap.SafeMode:
		return StateDisabled
	case v.dataKey == nil:
		return StateLocked
	default:
		return StateUnlocked
	}
}

// IsSafeMode reports whether Safe Mode is on.
func (v *Vault) IsSafeMode(ctx context.Context) (bool, error) {
	state, err := v.State(ctx)
	return state != StateDisabled, err
}

// IsUnlocked reports whether the data key is in memory.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dataKey != nil
}

// SetupEncryption turns Safe Mode on with a new data key wrapped under
// password. Existing secret values are sealed. The vault is left unlocked.
func (v *Vault) SetupEncryption(ctx context.Context, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}
	if snap.SafeMode {
		return ErrAlreadyEnabled
	}

	md, dataKey, err := newMetadata(password)
	if err != nil {
		return err
	}

	for i := range snap.Items {
		if err := sealItem(&snap.Items[i], dataKey); err != nil {
			crypto.Zero(dataKey)
			return err
		}
	}
	snap.SafeMode = true
	snap.Metadata = md

	if err := v.store.Save(ctx, snap); err != nil {
		crypto.Zero(dataKey)
		return fmt.Errorf("failed to save vault: %w", err)
	}

	v.setKey(dataKey)
	v.logger.Infof("Safe Mode enabled, %d items", len(snap.Items))
	return nil
}

func newMetadata(password string) (*types.VaultMetadata, []byte, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	dataKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	master := crypto.DeriveMasterKey(password, salt)
	defer crypto.Zero(master)

	wrapped, err := crypto.Encrypt(hex.EncodeToString(dataKey), master)
	if err != nil {
		crypto.Zero(dataKey)
		return nil, nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	validator, err := crypto.Encrypt(Validator, master)
	if err != nil {
		crypto.Zero(dataKey)
		return nil, nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &types.VaultMetadata{
		Salt:           hex.EncodeToString(salt),
		WrappedDataKey: wrapped,
		Validator:      validator,
	}, dataKey, nil
}

// Unlock checks password against the validator and unwraps the data key.
// On failure the vault stays locked.
func (v *Vault) Unlock(ctx context.Context, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}
	if !snap.SafeMode {
		return ErrNotSetUp
	}

	dataKey, err := unwrapDataKey(snap.Metadata, password)
	if err != nil {
		v.logger.Warnf("Unlock failed: %v", err)
		return err
	}

	v.setKey(dataKey)
	v.logger.Debugf("Vault unlocked")
	return nil
}

func unwrapDataKey(md *types.VaultMetadata, password string) ([]byte, error) {
	if md == nil || md.Salt == "" || md.WrappedDataKey.IsZero() {
		return nil, ErrCorrupt
	}
	salt, err := hex.DecodeString(md.Salt)
	if err != nil {
		return nil, ErrCorrupt
	}

	master := crypto.DeriveMasterKey(password, salt)
	defer crypto.Zero(master)

	// Exports written before validators existed carry none.
	if !md.Validator.IsZero() {
		check, err := crypto.DecryptString(md.Validator, master)
		if err != nil || check != Validator {
			return nil, ErrIncorrectPassword
		}
	}

	hexKey, err := crypto.DecryptString(md.WrappedDataKey, master)
	if err != nil {
		return nil, ErrIncorrectPassword
	}
	dataKey, err := hex.DecodeString(hexKey)
	if err != nil || len(dataKey) != crypto.KeySize {
		return nil, ErrCorrupt
	}
	return dataKey, nil
}

// Lock zeroes and forgets the data key. Locking a locked vault is a no-op.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dataKey != nil {
		v.logger.Debugf("Vault locked")
	}
	v.setKey(nil)
}

func (v *Vault) setKey(key []byte) {
	crypto.Zero(v.dataKey)
	v.dataKey = key
}

// DisableEncryption decrypts every value, removes the Safe Mode metadata and
// locks the vault. The vault must be unlocked.
func (v *Vault) DisableEncryption(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}
	if !snap.SafeMode {
		return ErrNotSetUp
	}
	if v.dataKey == nil {
		return ErrLocked
	}

	for i := range snap.Items {
		if err := openItem(&snap.Items[i], v.dataKey); err != nil {
			return err
		}
	}
	snap.SafeMode = false
	snap.Metadata = nil

	if err := v.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}

	v.setKey(nil)
	v.logger.Infof("Safe Mode disabled")
	return nil
}

// Items returns every item in order. Secret values are decrypted when the
// vault is unlocked; items that are locked or fail to decrypt are returned
// still enveloped.
func (v *Vault) Items(ctx context.Context) ([]types.PersonalInfoItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if v.dataKey == nil {
		return snap.Items, nil
	}

	for i := range snap.Items {
		item := snap.Items[i]
		if err := openItem(&item, v.dataKey); err != nil {
			v.logger.Warnf("Leaving %s encrypted: %v", item.Keyname, err)
			continue
		}
		snap.Items[i] = item
	}
	return snap.Items, nil
}

// RawItems returns every item as stored.
func (v *Vault) RawItems(ctx context.Context) ([]types.PersonalInfoItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

// DecryptItem returns item with its value in plaintext.
func (v *Vault) DecryptItem(ctx context.Context, item types.PersonalInfoItem) (types.PersonalInfoItem, error) {
	if !item.Value.IsEncrypted() {
		return item, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dataKey == nil {
		return item, ErrLocked
	}
	if err := openItem(&item, v.dataKey); err != nil {
		return item, err
	}
	return item, nil
}

// AddItem appends item. The keyname must be unused.
func (v *Vault) AddItem(ctx context.Context, item types.PersonalInfoItem) error {
	item.Keyname = strings.TrimSpace(item.Keyname)
	return v.update(ctx, func(snap *Snapshot) error {
		if _, ok := types.FindItem(snap.Items, item.Keyname); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, item.Keyname)
		}
		if err := v.prepare(snap, &item); err != nil {
			return err
		}
		snap.Items = append(snap.Items, item)
		return nil
	})
}

// UpdateItem replaces the item named oldKeyname. Renaming onto another
// existing keyname fails with ErrDuplicateKey.
func (v *Vault) UpdateItem(ctx context.Context, oldKeyname string, item types.PersonalInfoItem) error {
	oldKeyname = strings.TrimSpace(oldKeyname)
	item.Keyname = strings.TrimSpace(item.Keyname)
	return v.update(ctx, func(snap *Snapshot) error {
		idx := indexOf(snap.Items, oldKeyname)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, oldKeyname)
		}
		if item.Keyname != oldKeyname && indexOf(snap.Items, item.Keyname) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, item.Keyname)
		}
		if err := v.prepare(snap, &item); err != nil {
			return err
		}
		snap.Items[idx] = item
		return nil
	})
}

// UpsertItem updates the item with the same keyname or appends it. It
// reports whether the item was added.
func (v *Vault) UpsertItem(ctx context.Context, item types.PersonalInfoItem) (bool, error) {
	item.Keyname = strings.TrimSpace(item.Keyname)
	var added bool
	err := v.update(ctx, func(snap *Snapshot) error {
		if err := v.prepare(snap, &item); err != nil {
			return err
		}
		if idx := indexOf(snap.Items, item.Keyname); idx >= 0 {
			snap.Items[idx] = item
			return nil
		}
		snap.Items = append(snap.Items, item)
		added = true
		return nil
	})
	return added, err
}

// DeleteItem removes the item named keyname.
func (v *Vault) DeleteItem(ctx context.Context, keyname string) error {
	return v.update(ctx, func(snap *Snapshot) error {
		idx := indexOf(snap.Items, keyname)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, keyname)
		}
		if snap.SafeMode && v.dataKey == nil {
			return ErrLocked
		}
		snap.Items = append(snap.Items[:idx], snap.Items[idx+1:]...)
		return nil
	})
}

// Whitelist returns the stored site patterns.
func (v *Vault) Whitelist(ctx context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Whitelist, nil
}

// AddWhitelist stores pattern unless it is already present.
func (v *Vault) AddWhitelist(ctx context.Context, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return errors.New("whitelist pattern must not be empty")
	}
	return v.update(ctx, func(snap *Snapshot) error {
		for _, p := range snap.Whitelist {
			if strings.EqualFold(p, pattern) {
				return nil
			}
		}
		snap.Whitelist = append(snap.Whitelist, pattern)
		return nil
	})
}

// RemoveWhitelist deletes pattern. Removing an absent pattern is a no-op.
func (v *Vault) RemoveWhitelist(ctx context.Context, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	return v.update(ctx, func(snap *Snapshot) error {
		kept := snap.Whitelist[:0]
		for _, p := range snap.Whitelist {
			if !strings.EqualFold(p, pattern) {
				kept = append(kept, p)
			}
		}
		snap.Whitelist = kept
		return nil
	})
}

// update runs fn over a loaded snapshot under the lock and saves the result
// when fn succeeds.
func (v *Vault) update(ctx context.Context, fn func(*Snapshot) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap, err := v.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&snap); err != nil {
		return err
	}
	if err := v.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return nil
}

// prepare validates item and brings its value into the stored form for snap.
func (v *Vault) prepare(snap *Snapshot, item *types.PersonalInfoItem) error {
	item.Keyname = strings.TrimSpace(item.Keyname)
	if item.Keyname == "" {
		return ErrInvalidKeyname
	}
	if !snap.SafeMode {
		if item.Value.IsEncrypted() {
			return fmt.Errorf("%w: %s carries an encrypted value", ErrCorrupt, item.Keyname)
		}
		return nil
	}
	if v.dataKey == nil {
		return ErrLocked
	}
	if !item.IsSecret {
		return openItem(item, v.dataKey)
	}
	return sealItem(item, v.dataKey)
}

func sealItem(item *types.PersonalInfoItem, key []byte) error {
	if !item.IsSecret || item.Value.IsEncrypted() {
		return nil
	}
	env, err := crypto.Encrypt(item.Value.Plain, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", item.Keyname, err)
	}
	item.Value = types.EncryptedValue(env)
	return nil
}

func openItem(item *types.PersonalInfoItem, key []byte) error {
	if !item.Value.IsEncrypted() {
		return nil
	}
	plain, err := crypto.DecryptString(*item.Value.Encrypted, key)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", item.Keyname, err)
	}
	item.Value = types.PlainValue(plain)
	return nil
}

// checkKeynames trims every keyname in place and rejects blank or repeated
// ones.
func checkKeynames(items []types.PersonalInfoItem) error {
	seen := make(map[string]bool, len(items))
	for i := range items {
		items[i].Keyname = strings.TrimSpace(items[i].Keyname)
		name := items[i].Keyname
		if name == "" {
			return ErrInvalidKeyname
		}
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, name)
		}
		seen[name] = true
	}
	return nil
}

func indexOf(items []types.PersonalInfoItem, keyname string) int {
	for i, item := range items {
		if item.Keyname == keyname {
			return i
		}
	}
	return -1
}
