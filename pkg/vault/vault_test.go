package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autofill/pkg/types"
	"github.com/entrhq/autofill/pkg/vault/crypto"
)

func sampleItems() []types.PersonalInfoItem {
	return []types.PersonalInfoItem{
		{Keyname: "email", Description: "Primary email", Value: types.PlainValue("ada@example.com")},
		{Keyname: "passport", Description: "Passport number", Value: types.PlainValue("X1234567"), IsSecret: true, FakeValue: "P0000000"},
	}
}

func newTestVault(t *testing.T, items ...types.PersonalInfoItem) *Vault {
	t.Helper()
	return New(NewMemoryStore(Snapshot{Items: items}))
}

func stateOf(t *testing.T, v *Vault) State {
	t.Helper()
	s, err := v.State(context.Background())
	require.NoError(t, err)
	return s
}

func TestVault_StateMachine(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, sampleItems()...)

	assert.Equal(t, StateDisabled, stateOf(t, v))
	assert.ErrorIs(t, v.Unlock(ctx, "pw"), ErrNotSetUp)
	assert.ErrorIs(t, v.SetupEncryption(ctx, ""), ErrEmptyPassword)

	require.NoError(t, v.SetupEncryption(ctx, "correct horse"))
	assert.Equal(t, StateUnlocked, stateOf(t, v))
	assert.ErrorIs(t, v.SetupEncryption(ctx, "again"), ErrAlreadyEnabled)

	raw, err := v.RawItems(ctx)
	require.NoError(t, err)
	assert.False(t, raw[0].Value.IsEncrypted())
	assert.True(t, raw[1].Value.IsEncrypted())

	items, err := v.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, "X1234567", items[1].Value.String())

	v.Lock()
	v.Lock()
	assert.Equal(t, StateLocked, stateOf(t, v))

	items, err = v.Items(ctx)
	require.NoError(t, err)
	assert.True(t, items[1].Value.IsEncrypted())
	assert.Equal(t, "ada@example.com", items[0].Value.String())

	_, err = v.DecryptItem(ctx, items[1])
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, v.AddItem(ctx, types.PersonalInfoItem{Keyname: "phone", Value: types.PlainValue("1")}), ErrLocked)
	assert.ErrorIs(t, v.DisableEncryption(ctx), ErrLocked)

	assert.ErrorIs(t, v.Unlock(ctx, "wrong"), ErrIncorrectPassword)
	assert.Equal(t, StateLocked, stateOf(t, v))

	require.NoError(t, v.Unlock(ctx, "correct horse"))
	item, err := v.DecryptItem(ctx, items[1])
	require.NoError(t, err)
	assert.Equal(t, "X1234567", item.Value.String())

	require.NoError(t, v.DisableEncryption(ctx))
	assert.Equal(t, StateDisabled, stateOf(t, v))
	raw, err = v.RawItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, "X1234567", raw[1].Value.String())
	assert.False(t, v.IsUnlocked())
}

func TestVault_UnlockCorruptMetadata(t *testing.T) {
	v := New(NewMemoryStore(Snapshot{SafeMode: true, Metadata: &types.VaultMetadata{Salt: "zz"}}))
	assert.ErrorIs(t, v.Unlock(context.Background(), "pw"), ErrCorrupt)
	assert.False(t, v.IsUnlocked())
}

func TestVault_ItemOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("add", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		assert.ErrorIs(t, v.AddItem(ctx, types.PersonalInfoItem{Keyname: "email"}), ErrDuplicateKey)
		assert.ErrorIs(t, v.AddItem(ctx, types.PersonalInfoItem{Keyname: "  "}), ErrInvalidKeyname)
		require.NoError(t, v.AddItem(ctx, types.PersonalInfoItem{Keyname: " phone ", Value: types.PlainValue("555")}))

		items, err := v.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "phone", items[2].Keyname)
	})

	t.Run("update", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		assert.ErrorIs(t, v.UpdateItem(ctx, "missing", types.PersonalInfoItem{Keyname: "x"}), ErrItemNotFound)
		assert.ErrorIs(t, v.UpdateItem(ctx, "email", types.PersonalInfoItem{Keyname: "passport"}), ErrDuplicateKey)
		require.NoError(t, v.UpdateItem(ctx, "email", types.PersonalInfoItem{Keyname: "work_email", Value: types.PlainValue("ada@work.example")}))

		items, err := v.Items(ctx)
		require.NoError(t, err)
		assert.Equal(t, "work_email", items[0].Keyname)
		assert.Equal(t, "ada@work.example", items[0].Value.String())
	})

	t.Run("padded keynames collide with existing ones", func(t *testing.T) {
		tests := []struct {
			name string
			op   func(v *Vault) error
		}{
			{"add", func(v *Vault) error {
				return v.AddItem(ctx, types.PersonalInfoItem{Keyname: " email "})
			}},
			{"add tab", func(v *Vault) error {
				return v.AddItem(ctx, types.PersonalInfoItem{Keyname: "email\t"})
			}},
			{"rename", func(v *Vault) error {
				return v.UpdateItem(ctx, "passport", types.PersonalInfoItem{Keyname: "email "})
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				v := newTestVault(t, sampleItems()...)
				assert.ErrorIs(t, tt.op(v), ErrDuplicateKey)

				items, err := v.Items(ctx)
				require.NoError(t, err)
				assert.Equal(t, sampleItems(), items)
			})
		}
	})

	t.Run("padded names address existing items", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		require.NoError(t, v.UpdateItem(ctx, " email ", types.PersonalInfoItem{Keyname: " email ", Value: types.PlainValue("b@example.com")}))

		added, err := v.UpsertItem(ctx, types.PersonalInfoItem{Keyname: "passport ", Value: types.PlainValue("Y7654321"), IsSecret: true})
		require.NoError(t, err)
		assert.False(t, added)

		items, err := v.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "email", items[0].Keyname)
		assert.Equal(t, "b@example.com", items[0].Value.String())
		assert.Equal(t, "Y7654321", items[1].Value.String())
	})

	t.Run("upsert", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		added, err := v.UpsertItem(ctx, types.PersonalInfoItem{Keyname: "email", Value: types.PlainValue("new@example.com")})
		require.NoError(t, err)
		assert.False(t, added)

		added, err = v.UpsertItem(ctx, types.PersonalInfoItem{Keyname: "city", Value: types.PlainValue("Paris")})
		require.NoError(t, err)
		assert.True(t, added)

		items, err := v.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "new@example.com", items[0].Value.String())
	})

	t.Run("delete", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		assert.ErrorIs(t, v.DeleteItem(ctx, "missing"), ErrItemNotFound)
		require.NoError(t, v.DeleteItem(ctx, "email"))

		items, err := v.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "passport", items[0].Keyname)
	})

	t.Run("secret flag changes in safe mode", func(t *testing.T) {
		v := newTestVault(t, sampleItems()...)
		require.NoError(t, v.SetupEncryption(ctx, "pw"))

		require.NoError(t, v.UpdateItem(ctx, "passport", types.PersonalInfoItem{Keyname: "passport", Value: types.PlainValue("X1234567")}))
		require.NoError(t, v.UpdateItem(ctx, "email", types.PersonalInfoItem{Keyname: "email", Value: types.PlainValue("ada@example.com"), IsSecret: true}))

		raw, err := v.RawItems(ctx)
		require.NoError(t, err)
		assert.True(t, raw[0].Value.IsEncrypted())
		assert.False(t, raw[1].Value.IsEncrypted())
	})
}

func TestVault_Whitelist(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	require.NoError(t, v.AddWhitelist(ctx, "*.example.com"))
	require.NoError(t, v.AddWhitelist(ctx, "*.EXAMPLE.com"))
	require.NoError(t, v.AddWhitelist(ctx, "bank.test"))
	assert.Error(t, v.AddWhitelist(ctx, " "))

	list, err := v.Whitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.example.com", "bank.test"}, list)

	require.NoError(t, v.RemoveWhitelist(ctx, "*.example.com"))
	require.NoError(t, v.RemoveWhitelist(ctx, "absent.test"))
	list, err = v.Whitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bank.test"}, list)
}

func TestVault_ExportImport(t *testing.T) {
	ctx := context.Background()

	t.Run("plaintext round trip", func(t *testing.T) {
		src := newTestVault(t, sampleItems()...)
		data, err := src.Export(ctx)
		require.NoError(t, err)

		var file ExportFile
		require.NoError(t, json.Unmarshal(data, &file))
		assert.Equal(t, ExportType, file.Type)
		assert.Equal(t, ExportVersion, file.Version)
		assert.False(t, file.IsSafeMode)
		assert.Nil(t, file.Metadata)

		dst := newTestVault(t, types.PersonalInfoItem{Keyname: "old", Value: types.PlainValue("gone")})
		require.NoError(t, dst.Import(ctx, data, ""))
		items, err := dst.Items(ctx)
		require.NoError(t, err)
		assert.Equal(t, sampleItems(), items)
	})

	t.Run("safe mode export is adopted locked", func(t *testing.T) {
		src := newTestVault(t, sampleItems()...)
		require.NoError(t, src.SetupEncryption(ctx, "exporter"))
		src.Lock()

		data, err := src.Export(ctx)
		require.NoError(t, err)

		dst := newTestVault(t)
		require.NoError(t, dst.Import(ctx, data, ""))
		assert.Equal(t, StateLocked, stateOf(t, dst))

		items, err := dst.Items(ctx)
		require.NoError(t, err)
		assert.True(t, items[1].Value.IsEncrypted())

		require.NoError(t, dst.Unlock(ctx, "exporter"))
		items, err = dst.Items(ctx)
		require.NoError(t, err)
		assert.Equal(t, "X1234567", items[1].Value.String())
	})

	t.Run("plaintext into safe mode", func(t *testing.T) {
		data, err := newTestVault(t, sampleItems()...).Export(ctx)
		require.NoError(t, err)

		dst := newTestVault(t)
		require.NoError(t, dst.SetupEncryption(ctx, "local"))
		dst.Lock()

		assert.ErrorIs(t, dst.Import(ctx, data, ""), ErrNeedsPassword)
		assert.ErrorIs(t, dst.Import(ctx, data, "nope"), ErrIncorrectPassword)
		require.NoError(t, dst.Import(ctx, data, "local"))

		raw, err := dst.RawItems(ctx)
		require.NoError(t, err)
		assert.False(t, raw[0].Value.IsEncrypted())
		assert.True(t, raw[1].Value.IsEncrypted())
	})

	t.Run("duplicate keynames are rejected", func(t *testing.T) {
		plain := []byte(`{"type":"ai-autofill-export","version":3,"data":[` +
			`{"keyname":"a","description":"","value":"1","isSecret":false},` +
			`{"keyname":"a ","description":"","value":"2","isSecret":false}]}`)

		dst := newTestVault(t, sampleItems()...)
		assert.ErrorIs(t, dst.Import(ctx, plain, ""), ErrDuplicateKey)
		items, err := dst.Items(ctx)
		require.NoError(t, err)
		assert.Equal(t, sampleItems(), items)

		src := newTestVault(t, sampleItems()...)
		require.NoError(t, src.SetupEncryption(ctx, "exporter"))
		data, err := src.Export(ctx)
		require.NoError(t, err)
		var file ExportFile
		require.NoError(t, json.Unmarshal(data, &file))
		file.Data = append(file.Data, file.Data[0])
		data, err = json.Marshal(file)
		require.NoError(t, err)

		assert.ErrorIs(t, dst.Import(ctx, data, ""), ErrDuplicateKey)
		assert.Equal(t, StateDisabled, stateOf(t, dst))
	})

	t.Run("invalid files", func(t *testing.T) {
		v := newTestVault(t)
		assert.ErrorIs(t, v.Import(ctx, []byte("not json"), ""), ErrInvalidExport)
		assert.ErrorIs(t, v.Import(ctx, []byte(`{"type":"other","version":3,"data":[]}`), ""), ErrInvalidExport)
		assert.ErrorIs(t, v.Import(ctx, []byte(`{"type":"ai-autofill-export","version":3,"isSafeMode":true,"data":[]}`), ""), ErrInvalidExport)
	})
}

func TestVault_ImportLegacy(t *testing.T) {
	ctx := context.Background()

	md, dataKey, err := newMetadata("legacy")
	require.NoError(t, err)
	blob, err := crypto.Encrypt(sampleItems(), dataKey)
	require.NoError(t, err)

	data, err := json.Marshal(map[string]interface{}{
		"type":      ExportType,
		"version":   2,
		"encrypted": true,
		"metadata": map[string]interface{}{
			"salt":             md.Salt,
			"encryptedDataKey": md.WrappedDataKey,
			"validator":        md.Validator,
		},
		"vault": blob,
	})
	require.NoError(t, err)

	v := newTestVault(t)
	assert.ErrorIs(t, v.Import(ctx, data, ""), ErrNeedsPassword)
	assert.ErrorIs(t, v.Import(ctx, data, "wrong"), ErrIncorrectPassword)
	require.NoError(t, v.Import(ctx, data, "legacy"))

	items, err := v.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleItems(), items)
	assert.Equal(t, StateDisabled, stateOf(t, v))
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(Snapshot{}) },
		"file": func(t *testing.T) Store {
			return NewFileStore(filepath.Join(t.TempDir(), "nested", "vault.json"))
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "vault.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)

			empty, err := store.Load(ctx)
			require.NoError(t, err)
			assert.False(t, empty.SafeMode)
			assert.Empty(t, empty.Items)

			v := New(store)
			for _, item := range sampleItems() {
				require.NoError(t, v.AddItem(ctx, item))
			}
			require.NoError(t, v.AddWhitelist(ctx, "*.example.com"))
			require.NoError(t, v.SetupEncryption(ctx, "pw"))
			v.Lock()

			reopened := New(store)
			assert.Equal(t, StateLocked, stateOf(t, reopened))
			require.NoError(t, reopened.Unlock(ctx, "pw"))

			items, err := reopened.Items(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleItems(), items)

			list, err := reopened.Whitelist(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"*.example.com"}, list)

			snap, err := store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, snap.Metadata)
			_, err = hex.DecodeString(snap.Metadata.Salt)
			assert.NoError(t, err)
		})
	}
}
