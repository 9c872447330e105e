package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is an AES-GCM ciphertext with its IV, both hex encoded.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// IsZero reports whether the envelope carries no ciphertext.
func (e Envelope) IsZero() bool {
	return e.Ciphertext == "" && e.IV == ""
}

// ItemValue is the persisted value of a vault item: either plaintext or an
// encrypted envelope. It serialises as a JSON string or as
// {"ciphertext": ..., "iv": ...}.
type ItemValue struct {
	Plain     string
	Encrypted *Envelope
}

// PlainValue wraps a plaintext value.
func PlainValue(s string) ItemValue {
	return ItemValue{Plain: s}
}

// EncryptedValue wraps an encrypted envelope.
func EncryptedValue(env Envelope) ItemValue {
	return ItemValue{Encrypted: &env}
}

// IsEncrypted reports whether the value is still an envelope.
func (v ItemValue) IsEncrypted() bool {
	return v.Encrypted != nil
}

// String returns the plaintext, or an empty string for envelopes.
func (v ItemValue) String() string {
	if v.Encrypted != nil {
		return ""
	}
	return v.Plain
}

// MarshalJSON implements json.Marshaler.
func (v ItemValue) MarshalJSON() ([]byte, error) {
	if v.Encrypted != nil {
		return json.Marshal(v.Encrypted)
	}
	return json.Marshal(v.Plain)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *ItemValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ItemValue{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ItemValue{Plain: s}
		return nil
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid item value: %w", err)
	}
	if env.Ciphertext == "" {
		return fmt.Errorf("invalid item value: envelope without ciphertext")
	}
	*v = ItemValue{Encrypted: &env}
	return nil
}

// PersonalInfoItem is one entry of the personal-data vault.
type PersonalInfoItem struct {
	Keyname     string    `json:"keyname"`
	Description string    `json:"description"`
	Value       ItemValue `json:"value"`
	IsSecret    bool      `json:"isSecret"`
	FakeValue   string    `json:"fakeValue,omitempty"`
}

// VaultMetadata holds the Safe Mode key-wrapping material.
type VaultMetadata struct {
	Salt           string   `json:"salt"`
	WrappedDataKey Envelope `json:"wrappedDataKey"`
	Validator      Envelope `json:"validator"`
}

// UnmarshalJSON accepts the older "encryptedDataKey" field name as well.
func (m *VaultMetadata) UnmarshalJSON(data []byte) error {
	var raw struct {
		Salt             string    `json:"salt"`
		WrappedDataKey   *Envelope `json:"wrappedDataKey"`
		EncryptedDataKey *Envelope `json:"encryptedDataKey"`
		Validator        Envelope  `json:"validator"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Salt = raw.Salt
	m.Validator = raw.Validator
	switch {
	case raw.WrappedDataKey != nil:
		m.WrappedDataKey = *raw.WrappedDataKey
	case raw.EncryptedDataKey != nil:
		m.WrappedDataKey = *raw.EncryptedDataKey
	default:
		m.WrappedDataKey = Envelope{}
	}
	return nil
}

// FindItem returns the item with the given keyname.
func FindItem(items []PersonalInfoItem, keyname string) (PersonalInfoItem, bool) {
	for _, item := range items {
		if item.Keyname == keyname {
			return item, true
		}
	}
	return PersonalInfoItem{}, false
}

// HasSecrets reports whether any item is flagged secret.
func HasSecrets(items []PersonalInfoItem) bool {
	for _, item := range items {
		if item.IsSecret {
			return true
		}
	}
	return false
}
